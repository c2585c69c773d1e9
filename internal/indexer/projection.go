// Package indexer keeps the search indexes in sync with the system of
// record. Projections are always recomputed in full from the current record;
// there are no partial document updates, so a missed sync is healed by the
// next one.
package indexer

import (
	"fmt"
	"time"

	"doria/internal/doi/codec"
	doimodels "doria/internal/doi/models"
	eventmodels "doria/internal/event/models"
	registrymodels "doria/internal/registry/models"
	"doria/internal/search"
)

const (
	IndexDOIs      = "dois"
	IndexClients   = "clients"
	IndexProviders = "providers"
	IndexEvents    = "events"
)

// DOIDocument recomputes the full index projection of an identifier.
func DOIDocument(d *doimodels.DOI) search.Document {
	doc := search.Document{
		"id":               d.DOI,
		"doi":              d.DOI,
		"prefix":           codec.PrefixOf(d.DOI),
		"client_id":        d.ClientID,
		"provider_id":      d.ProviderID,
		"url":              d.URL,
		"title":            d.Title,
		"publisher":        d.Publisher,
		"publication_year": d.PublicationYear,
		"resource_type":    d.ResourceType,
		"state":            string(d.State),
		"is_active":        d.State == doimodels.StateFindable,
		"created":          d.CreatedAt.Format(time.RFC3339),
		"created_year":     d.CreatedAt.Year(),
		"updated":          d.UpdatedAt.Format(time.RFC3339),
	}
	if d.RegisteredAt != nil {
		doc["registered"] = d.RegisteredAt.Format(time.RFC3339)
		doc["registered_year"] = d.RegisteredAt.Year()
	}
	if d.MintedAt != nil {
		doc["minted"] = d.MintedAt.Format(time.RFC3339)
	}
	return doc
}

// ClientDocument recomputes the full index projection of a client.
func ClientDocument(c *registrymodels.Client) search.Document {
	doc := search.Document{
		"id":            c.UID(),
		"symbol":        c.Symbol,
		"name":          c.Name,
		"provider_id":   c.ProviderID,
		"contact_email": c.ContactEmail,
		"url":           c.URL,
		"software":      c.Software,
		"re3data_id":    c.Re3dataID,
		"client_type":   string(c.ClientType),
		"is_active":     c.IsActive,
		"created":       c.CreatedAt.Format(time.RFC3339),
		"created_year":  c.CreatedAt.Year(),
		"updated":       c.UpdatedAt.Format(time.RFC3339),
	}
	if c.DeletedAt != nil {
		doc["deleted_at"] = c.DeletedAt.Format(time.RFC3339)
	}
	return doc
}

// ProviderDocument recomputes the full index projection of a provider,
// including the derived region and membership year roll-up.
func ProviderDocument(p *registrymodels.Provider, now time.Time) search.Document {
	doc := search.Document{
		"id":                p.Symbol,
		"symbol":            p.Symbol,
		"name":              p.Name,
		"contact_email":     p.ContactEmail,
		"website":           p.Website,
		"country_code":      p.CountryCode,
		"region":            p.Region(),
		"member_type":       string(p.MemberType),
		"organization_type": p.OrganizationType,
		"focus_area":        p.FocusArea,
		"cumulative_years":  p.CumulativeYears(now),
		"created":           p.CreatedAt.Format(time.RFC3339),
		"created_year":      p.CreatedAt.Year(),
		"updated":           p.UpdatedAt.Format(time.RFC3339),
	}
	if p.DeletedAt != nil {
		doc["deleted_at"] = p.DeletedAt.Format(time.RFC3339)
	}
	return doc
}

// EventDocument recomputes the full index projection of an event.
func EventDocument(e *eventmodels.Event) search.Document {
	doc := search.Document{
		"id":               e.UUID,
		"uuid":             e.UUID,
		"subj_id":          e.SubjID,
		"obj_id":           e.ObjID,
		"source_id":        e.SourceID,
		"relation_type_id": e.RelationTypeID,
		"total":            e.Total,
		"state":            string(e.State),
		"year_month":       e.YearMonth(),
		"occurred_at":      e.OccurredAt.Format(time.RFC3339),
		"occurred_year":    e.OccurredAt.Year(),
		"created":          e.CreatedAt.Format(time.RFC3339),
	}
	if doi := e.DOI(); doi != "" {
		doc["doi"] = doi
		doc["prefix"] = codec.PrefixOf(doi)
	}
	return doc
}

// Relation-type groupings for the usage roll-ups on DOI projections.
var (
	citationRelations = map[string]bool{
		"is-referenced-by": true,
		"is-cited-by":      true,
		"references":       true,
		"cites":            true,
	}
	viewRelations = map[string]bool{
		"unique-dataset-investigations-regular": true,
		"unique-dataset-investigations-machine": true,
	}
	downloadRelations = map[string]bool{
		"unique-dataset-requests-regular": true,
		"unique-dataset-requests-machine": true,
	}
)

// ApplyUsageRollups derives the citation/view/download counters from the
// identifier's events. Citations count relations; usage sums reported totals.
func ApplyUsageRollups(doc search.Document, events []*eventmodels.Event) {
	citations, views, downloads := 0, 0, 0
	for _, e := range events {
		switch {
		case citationRelations[e.RelationTypeID]:
			citations++
		case viewRelations[e.RelationTypeID]:
			views += e.Total
		case downloadRelations[e.RelationTypeID]:
			downloads += e.Total
		}
	}
	doc["citation_count"] = citations
	doc["view_count"] = views
	doc["download_count"] = downloads
}

// CacheKey names a projection cache entry. The update timestamp is part of
// the key, so a stale cache entry can never shadow a newer record.
func CacheKey(index, uid string, updatedAt time.Time) string {
	return fmt.Sprintf("%s/%s-%d", index, uid, updatedAt.Unix())
}
