package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"doria/internal/doi/lifecycle"
	doiservice "doria/internal/doi/service"
	eventservice "doria/internal/event/service"
	registrymodels "doria/internal/registry/models"
	registryservice "doria/internal/registry/service"
	"doria/internal/search"
	"doria/pkg/platform/httputil"
)

// searchResponse is the list envelope shared by all entity kinds.
type searchResponse struct {
	Data       []search.Document          `json:"data"`
	Meta       searchMeta                 `json:"meta"`
	NextCursor string                     `json:"next_cursor,omitempty"`
	Facets     map[string][]search.Bucket `json:"facets,omitempty"`
}

type searchMeta struct {
	Total      int `json:"total"`
	TotalPages int `json:"total_pages,omitempty"`
}

func (h *Handler) queryKind(kind search.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := parseSearchRequest(r.URL.Query())
		resp, err := h.searcher.Query(r.Context(), kind, req)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		body := searchResponse{
			Data:       resp.Results,
			Meta:       searchMeta{Total: resp.Total, TotalPages: resp.TotalPages},
			NextCursor: encodeCursor(resp.NextCursor),
			Facets:     resp.Aggregations,
		}
		if body.Data == nil {
			body.Data = []search.Document{}
		}
		httputil.WriteJSON(w, http.StatusOK, body)
	}
}

// doiParam reassembles the identifier from the route: the prefix segment plus
// the wildcard suffix.
func doiParam(r *http.Request) string {
	return chi.URLParam(r, "prefix") + "/" + chi.URLParam(r, "*")
}

type createDOIRequest struct {
	DOI             string `json:"doi"`
	Prefix          string `json:"prefix"`
	Shoulder        string `json:"shoulder"`
	ClientID        string `json:"client_id"`
	URL             string `json:"url"`
	Title           string `json:"title"`
	Publisher       string `json:"publisher"`
	PublicationYear int    `json:"publication_year"`
	ResourceType    string `json:"resource_type"`
}

func (h *Handler) createDOI(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[createDOIRequest](w, r)
	if !ok {
		return
	}
	d, err := h.dois.Create(r.Context(), doiservice.CreateInput{
		DOI:             req.DOI,
		Prefix:          req.Prefix,
		Shoulder:        req.Shoulder,
		ClientID:        req.ClientID,
		URL:             req.URL,
		Title:           req.Title,
		Publisher:       req.Publisher,
		PublicationYear: req.PublicationYear,
		ResourceType:    req.ResourceType,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) getDOI(w http.ResponseWriter, r *http.Request) {
	d, err := h.dois.Get(r.Context(), doiParam(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

type updateDOIRequest struct {
	URL             *string `json:"url"`
	Title           *string `json:"title"`
	Publisher       *string `json:"publisher"`
	PublicationYear *int    `json:"publication_year"`
	ResourceType    *string `json:"resource_type"`
}

func (h *Handler) updateDOI(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[updateDOIRequest](w, r)
	if !ok {
		return
	}
	d, err := h.dois.Update(r.Context(), doiParam(r), doiservice.UpdateInput{
		URL:             req.URL,
		Title:           req.Title,
		Publisher:       req.Publisher,
		PublicationYear: req.PublicationYear,
		ResourceType:    req.ResourceType,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) destroyDOI(w http.ResponseWriter, r *http.Request) {
	if err := h.dois.Destroy(r.Context(), doiParam(r)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	Event string `json:"event"`
	// ClientID is the transfer target, only read for the transfer event.
	ClientID string `json:"client_id,omitempty"`
}

func (h *Handler) transitionDOI(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[transitionRequest](w, r)
	if !ok {
		return
	}
	ev := lifecycle.Event(strings.ToLower(req.Event))
	if ev == "transfer" {
		d, err := h.dois.Transfer(r.Context(), doiParam(r), req.ClientID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, d)
		return
	}
	d, err := h.dois.Transition(r.Context(), doiParam(r), ev)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.log.Info("doi transition",
		zap.String("doi", d.DOI),
		zap.String("event", string(ev)),
		zap.String("state", string(d.State)))
	httputil.WriteJSON(w, http.StatusOK, d)
}

type createProviderRequest struct {
	Symbol           string `json:"symbol"`
	Name             string `json:"name"`
	ContactEmail     string `json:"contact_email"`
	Website          string `json:"website"`
	CountryCode      string `json:"country_code"`
	MemberType       string `json:"member_type"`
	OrganizationType string `json:"organization_type"`
	FocusArea        string `json:"focus_area"`
}

func (h *Handler) createProvider(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[createProviderRequest](w, r)
	if !ok {
		return
	}
	p, err := h.registry.CreateProvider(r.Context(), registryservice.ProviderInput{
		Symbol:           req.Symbol,
		Name:             req.Name,
		ContactEmail:     req.ContactEmail,
		Website:          req.Website,
		CountryCode:      req.CountryCode,
		MemberType:       registrymodels.MemberType(req.MemberType),
		OrganizationType: req.OrganizationType,
		FocusArea:        req.FocusArea,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) getProvider(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.GetProvider(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProvider(w http.ResponseWriter, r *http.Request) {
	if _, err := h.registry.DeleteProvider(r.Context(), chi.URLParam(r, "symbol")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createClientRequest struct {
	Symbol       string `json:"symbol"`
	ProviderID   string `json:"provider_id"`
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
	URL          string `json:"url"`
	Software     string `json:"software"`
	Re3dataID    string `json:"re3data_id"`
	ClientType   string `json:"client_type"`
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[createClientRequest](w, r)
	if !ok {
		return
	}
	c, err := h.registry.CreateClient(r.Context(), registryservice.ClientInput{
		Symbol:       req.Symbol,
		ProviderID:   req.ProviderID,
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
		URL:          req.URL,
		Software:     req.Software,
		Re3dataID:    req.Re3dataID,
		ClientType:   registrymodels.ClientType(req.ClientType),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.registry.GetClient(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	if _, err := h.registry.DeleteClient(r.Context(), chi.URLParam(r, "symbol")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transferClientRequest struct {
	ProviderID string `json:"provider_id"`
}

func (h *Handler) transferClient(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[transferClientRequest](w, r)
	if !ok {
		return
	}
	c, err := h.registry.TransferClient(r.Context(), chi.URLParam(r, "symbol"), req.ProviderID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

type createPrefixRequest struct {
	UID string `json:"uid"`
}

func (h *Handler) createPrefix(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[createPrefixRequest](w, r)
	if !ok {
		return
	}
	p, err := h.registry.CreatePrefix(r.Context(), req.UID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

type assignPrefixRequest struct {
	Symbol string `json:"symbol"`
}

func (h *Handler) assignPrefixProvider(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[assignPrefixRequest](w, r)
	if !ok {
		return
	}
	p, err := h.registry.AssignPrefixToProvider(r.Context(), chi.URLParam(r, "uid"), req.Symbol)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) assignPrefixClient(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[assignPrefixRequest](w, r)
	if !ok {
		return
	}
	p, err := h.registry.AssignPrefixToClient(r.Context(), chi.URLParam(r, "uid"), req.Symbol)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[eventservice.Input](w, r)
	if !ok {
		return
	}
	e, err := h.events.Create(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, e)
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.events.Get(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) releasePrefix(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.ReleasePrefix(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}
