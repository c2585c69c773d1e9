package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	doimodels "doria/internal/doi/models"
	doistore "doria/internal/doi/store"
	"doria/internal/jobs"
	"doria/internal/registry/models"
	"doria/internal/registry/store"
	"doria/pkg/domainerrors"
	"doria/pkg/requestcontext"
	"doria/pkg/testutil"
)

type fixture struct {
	svc   *Service
	dois  *doistore.InMemory
	queue *jobs.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dois := doistore.NewInMemory()
	queue := jobs.NewMemory(64, zap.NewNop())
	svc := New(
		store.NewMemoryProviders(),
		store.NewMemoryClients(),
		store.NewMemoryPrefixes(),
		dois, queue, zap.NewNop(),
	)
	return &fixture{svc: svc, dois: dois, queue: queue}
}

func (f *fixture) seedProviderAndClient(t *testing.T, ctx context.Context) (*models.Provider, *models.Client) {
	t.Helper()
	p, err := f.svc.CreateProvider(ctx, ProviderInput{
		Symbol: "SAMPLE", Name: "Sample Org", ContactEmail: "ops@sample.org", CountryCode: "de",
	})
	require.NoError(t, err)
	c, err := f.svc.CreateClient(ctx, ClientInput{
		Symbol: "SAMPLE.REPO", ProviderID: "SAMPLE", Name: "Sample Repository",
		ContactEmail: "repo@sample.org",
	})
	require.NoError(t, err)
	return p, c
}

func TestCreateProviderDerivesRegion(t *testing.T) {
	f := newFixture(t)
	p, _ := f.seedProviderAndClient(t, testutil.Context())
	assert.Equal(t, "EMEA", p.Region())
	assert.Equal(t, models.MemberDirect, p.MemberType)
}

func TestCreateProviderDuplicateSymbol(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	f.seedProviderAndClient(t, ctx)

	_, err := f.svc.CreateProvider(ctx, ProviderInput{Symbol: "SAMPLE", Name: "Other"})
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeConflict))
}

func TestCreateClientRequiresMatchingSymbol(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	f.seedProviderAndClient(t, ctx)

	_, err := f.svc.CreateClient(ctx, ClientInput{
		Symbol: "OTHER.REPO", ProviderID: "SAMPLE", Name: "Mismatched",
	})
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation))
}

func TestDeleteProviderRejectedWithActiveClients(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	f.seedProviderAndClient(t, ctx)

	_, err := f.svc.DeleteProvider(ctx, "SAMPLE")
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeConflict))

	_, err = f.svc.DeleteClient(ctx, "SAMPLE.REPO")
	require.NoError(t, err)

	p, err := f.svc.DeleteProvider(ctx, "SAMPLE")
	require.NoError(t, err)
	assert.True(t, p.IsDeleted())
}

func TestDeleteClientRejectedWhileOwningIdentifiers(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	f.seedProviderAndClient(t, ctx)

	d, err := doiRecord(ctx)
	require.NoError(t, err)
	require.NoError(t, f.dois.Create(ctx, d))

	_, err = f.svc.DeleteClient(ctx, "SAMPLE.REPO")
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeConflict))

	require.NoError(t, f.dois.Delete(ctx, d.DOI))
	_, err = f.svc.DeleteClient(ctx, "SAMPLE.REPO")
	require.NoError(t, err)
}

func TestTransferClientMovesPrefixes(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	f.seedProviderAndClient(t, ctx)
	_, err := f.svc.CreateProvider(ctx, ProviderInput{Symbol: "TARGET", Name: "Target Org"})
	require.NoError(t, err)

	_, err = f.svc.CreatePrefix(ctx, "10.5072")
	require.NoError(t, err)
	_, err = f.svc.AssignPrefixToProvider(ctx, "10.5072", "SAMPLE")
	require.NoError(t, err)
	_, err = f.svc.AssignPrefixToClient(ctx, "10.5072", "SAMPLE.REPO")
	require.NoError(t, err)

	c, err := f.svc.TransferClient(ctx, "SAMPLE.REPO", "TARGET")
	require.NoError(t, err)
	assert.Equal(t, "TARGET", c.ProviderID)
	assert.Equal(t, "SAMPLE.REPO", c.Symbol, "symbol keeps its historical provider segment")

	p, err := f.svc.AssignPrefixToProvider(ctx, "10.5072", "TARGET")
	require.NoError(t, err)
	assert.Equal(t, "TARGET", p.ProviderID)
	assert.Equal(t, "sample.repo", p.ClientID)
}

func TestPrefixAssignmentRules(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	f.seedProviderAndClient(t, ctx)

	_, err := f.svc.CreatePrefix(ctx, "10.5072")
	require.NoError(t, err)

	// Client assignment before any provider holds the prefix.
	_, err = f.svc.AssignPrefixToClient(ctx, "10.5072", "SAMPLE.REPO")
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeInvariantViolation))

	_, err = f.svc.AssignPrefixToProvider(ctx, "10.5072", "SAMPLE")
	require.NoError(t, err)
	_, err = f.svc.AssignPrefixToClient(ctx, "10.5072", "SAMPLE.REPO")
	require.NoError(t, err)

	// A second client of another provider cannot take the prefix.
	_, err = f.svc.CreateProvider(ctx, ProviderInput{Symbol: "OTHER", Name: "Other Org"})
	require.NoError(t, err)
	_, err = f.svc.CreateClient(ctx, ClientInput{
		Symbol: "OTHER.LAB", ProviderID: "OTHER", Name: "Other Lab",
	})
	require.NoError(t, err)
	_, err = f.svc.AssignPrefixToClient(ctx, "10.5072", "OTHER.LAB")
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeConflict))
}

func TestReleasePrefixRejectedWhileInUse(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	f.seedProviderAndClient(t, ctx)

	_, err := f.svc.CreatePrefix(ctx, "10.5072")
	require.NoError(t, err)
	_, err = f.svc.AssignPrefixToProvider(ctx, "10.5072", "SAMPLE")
	require.NoError(t, err)
	_, err = f.svc.AssignPrefixToClient(ctx, "10.5072", "SAMPLE.REPO")
	require.NoError(t, err)

	d, err := doiRecord(ctx)
	require.NoError(t, err)
	require.NoError(t, f.dois.Create(ctx, d))

	_, err = f.svc.ReleasePrefix(ctx, "10.5072")
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeConflict))

	require.NoError(t, f.dois.Delete(ctx, d.DOI))
	p, err := f.svc.ReleasePrefix(ctx, "10.5072")
	require.NoError(t, err)
	assert.False(t, p.IsAssignedToClient())
}

func doiRecord(ctx context.Context) (*doimodels.DOI, error) {
	d, err := doimodels.New("10.5072/0003-rj0r", "sample.repo", "sample",
		"https://example.org/x", requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	d.Title = "Sample Dataset"
	return d, nil
}

func TestCumulativeYears(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Context()
	p, _ := f.seedProviderAndClient(t, ctx)

	now := testutil.FixedTime.AddDate(2, 0, 0)
	assert.Equal(t, []int{2024, 2025, 2026}, p.CumulativeYears(now))

	deleted := testutil.FixedTime.AddDate(1, 0, 0)
	p.DeletedAt = &deleted
	assert.Equal(t, []int{2024}, p.CumulativeYears(now), "deletion year is excluded")
}
