package handle

import (
	"context"
	"net/http"
	"sync"

	"doria/pkg/domainerrors"
)

// FakeRegistrar records registrations in memory. Service and integration
// tests substitute it for the HTTP client; its observable behavior matches
// the remote service's idempotent upsert semantics.
type FakeRegistrar struct {
	mu      sync.Mutex
	records map[string]string // doi -> target URL
	puts    []string          // every registered doi, in call order
	FailAll bool
}

func NewFakeRegistrar() *FakeRegistrar {
	return &FakeRegistrar{records: make(map[string]string)}
}

func (f *FakeRegistrar) Register(_ context.Context, doi, targetURL string) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAll {
		return Response{Status: http.StatusBadGateway},
			domainerrors.Newf(domainerrors.CodeRegistrationFailed, "handle service returned status 502 for %s", doi)
	}
	status := http.StatusCreated
	if _, ok := f.records[doi]; ok {
		status = http.StatusOK
	}
	f.records[doi] = targetURL
	f.puts = append(f.puts, doi)
	return Response{Status: status}, nil
}

func (f *FakeRegistrar) Resolve(_ context.Context, doi string) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url, ok := f.records[doi]
	if !ok {
		return Response{Status: http.StatusNotFound},
			domainerrors.Newf(domainerrors.CodeRegistrationFailed, "handle service returned status 404 for %s", doi)
	}
	return Response{Status: http.StatusOK, Body: []byte(url)}, nil
}

func (f *FakeRegistrar) Deregister(_ context.Context, doi string) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, doi)
	return Response{Status: http.StatusOK}, nil
}

// TargetURL returns the currently registered URL for doi.
func (f *FakeRegistrar) TargetURL(doi string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url, ok := f.records[doi]
	return url, ok
}

// Registrations returns every Register call's doi in order.
func (f *FakeRegistrar) Registrations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.puts...)
}
