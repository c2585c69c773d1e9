// Package handle talks to the external handle-resolution service that maps
// DOIs to resolvable URLs.
//
// All operations are idempotent from the remote service's perspective:
// Register is an HTTP PUT keyed by the DOI string, so repeated calls with the
// same target URL leave the remote record unchanged. Failures are logged and
// surfaced; the client never retries synchronously — retries are an explicit
// operator action through the job queue.
package handle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"doria/pkg/domainerrors"
	platformstrings "doria/pkg/platform/strings"
	"doria/pkg/requestcontext"
)

// adminIndex is the handle index of the administrative permissions record.
const adminIndex = 100

// urlIndex is the handle index of the resolution record.
const urlIndex = 1

// Credentials authenticates against the handle service. The username is sent
// in the service's "300:{username}" basic-auth convention.
type Credentials struct {
	Username string
	Password string
}

// CredentialsSource derives per-actor credentials. A client-scoped actor uses
// its own stored handle account; everyone else falls back to the service
// account.
type CredentialsSource interface {
	CredentialsFor(ctx context.Context, actor requestcontext.Actor) (Credentials, bool)
}

// Registrar is the surface consumed by the DOI lifecycle orchestrator.
type Registrar interface {
	Register(ctx context.Context, doi, targetURL string) (Response, error)
	Resolve(ctx context.Context, doi string) (Response, error)
	Deregister(ctx context.Context, doi string) (Response, error)
}

// Response captures the remote service's answer.
type Response struct {
	Status int
	Body   []byte
}

// OK reports a success status (200 or 201).
func (r Response) OK() bool { return r.Status == http.StatusOK || r.Status == http.StatusCreated }

// Client implements Registrar over HTTP.
type Client struct {
	base          string
	serviceCreds  Credentials
	creds         CredentialsSource
	sandboxPrefix string
	http          *http.Client
	log           *zap.Logger
	alerter       Alerter
}

// Option configures optional collaborators.
type Option func(*Client)

// WithCredentialsSource installs per-actor credential derivation.
func WithCredentialsSource(src CredentialsSource) Option {
	return func(c *Client) { c.creds = src }
}

// WithAlerter installs failure alerting.
func WithAlerter(a Alerter) Option {
	return func(c *Client) { c.alerter = a }
}

// WithHTTPClient substitutes the HTTP client, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New builds a handle client. timeout bounds every outbound call; a timeout is
// treated identically to any other non-success response.
func New(base string, serviceCreds Credentials, sandboxPrefix string, timeout time.Duration, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		base:          strings.TrimRight(base, "/"),
		serviceCreds:  serviceCreds,
		sandboxPrefix: sandboxPrefix,
		http:          &http.Client{Timeout: timeout},
		log:           log,
		alerter:       NopAlerter{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type handleRecord struct {
	Index int        `json:"index"`
	Type  string     `json:"type"`
	Data  handleData `json:"data"`
}

type handleData struct {
	Format string `json:"format"`
	Value  any    `json:"value"`
}

type adminValue struct {
	Handle      string `json:"handle"`
	Index       int    `json:"index"`
	Permissions string `json:"permissions"`
}

// Register upserts the resolution record for doi. The payload always carries
// the administrative permissions record alongside the URL record so the
// service account retains full rights on the handle.
func (c *Client) Register(ctx context.Context, doi, targetURL string) (Response, error) {
	if targetURL == "" {
		return Response{}, domainerrors.New(domainerrors.CodeValidation, "url missing").
			WithFields(domainerrors.FieldError{Field: "url", Reason: "must be present"})
	}

	creds := c.credentialsFor(ctx)
	payload := []handleRecord{
		{
			Index: adminIndex,
			Type:  "HS_ADMIN",
			Data: handleData{
				Format: "admin",
				Value: adminValue{
					Handle:      c.serviceCreds.Username,
					Index:       300,
					Permissions: "111111111111",
				},
			},
		},
		{
			Index: urlIndex,
			Type:  "URL",
			Data:  handleData{Format: "string", Value: targetURL},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal handle payload: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPut, c.handleURL(doi, ""), creds, body)
	if err != nil {
		c.log.Error("handle registration request failed", zap.String("doi", doi), zap.Error(err))
		return Response{}, domainerrors.Wrap(err, domainerrors.CodeRegistrationFailed, "handle service unreachable")
	}
	if !resp.OK() {
		c.log.Error("handle registration rejected",
			zap.String("doi", doi),
			zap.Int("status", resp.Status),
			zap.ByteString("body", resp.Body))
		c.alerter.Alert(ctx, fmt.Sprintf("Error %d", resp.Status),
			fmt.Sprintf("handle registration for %s rejected", doi))
		return resp, domainerrors.Newf(domainerrors.CodeRegistrationFailed,
			"handle service returned status %d for %s", resp.Status, doi)
	}
	c.log.Info("handle url updated", zap.String("doi", doi), zap.String("url", targetURL))
	return resp, nil
}

// Resolve fetches the current resolution record for doi.
func (c *Client) Resolve(ctx context.Context, doi string) (Response, error) {
	resp, err := c.do(ctx, http.MethodGet, c.handleURL(doi, "index=1"), c.credentialsFor(ctx), nil)
	if err != nil {
		c.log.Error("handle resolve request failed", zap.String("doi", doi), zap.Error(err))
		return Response{}, domainerrors.Wrap(err, domainerrors.CodeRegistrationFailed, "handle service unreachable")
	}
	if resp.Status != http.StatusOK {
		c.log.Error("handle resolve rejected",
			zap.String("doi", doi),
			zap.Int("status", resp.Status),
			zap.ByteString("body", resp.Body))
		return resp, domainerrors.Newf(domainerrors.CodeRegistrationFailed,
			"handle service returned status %d for %s", resp.Status, doi)
	}
	return resp, nil
}

// Deregister removes the handle record. To prevent destructive calls against
// production-registered identifiers it rejects, without contacting the remote
// service, any DOI outside the sandbox prefix.
func (c *Client) Deregister(ctx context.Context, doi string) (Response, error) {
	if !strings.HasPrefix(doi, c.sandboxPrefix+"/") {
		return Response{}, domainerrors.Newf(domainerrors.CodeValidation,
			"only dois with prefix %s can be deleted", c.sandboxPrefix)
	}
	resp, err := c.do(ctx, http.MethodDelete, c.handleURL(doi, ""), c.credentialsFor(ctx), nil)
	if err != nil {
		c.log.Error("handle delete request failed", zap.String("doi", doi), zap.Error(err))
		return Response{}, domainerrors.Wrap(err, domainerrors.CodeRegistrationFailed, "handle service unreachable")
	}
	if resp.Status != http.StatusOK {
		c.log.Error("handle delete rejected",
			zap.String("doi", doi),
			zap.Int("status", resp.Status),
			zap.ByteString("body", resp.Body))
		c.alerter.Alert(ctx, fmt.Sprintf("Error %d", resp.Status),
			fmt.Sprintf("handle delete for %s rejected", doi))
		return resp, domainerrors.Newf(domainerrors.CodeRegistrationFailed,
			"handle service returned status %d for %s", resp.Status, doi)
	}
	return resp, nil
}

// ListHandles walks the service's paginated listing for a prefix and returns
// all handle strings.
func (c *Client) ListHandles(ctx context.Context, prefix string) ([]string, error) {
	if prefix == "" {
		return nil, domainerrors.New(domainerrors.CodeBadRequest, "prefix missing")
	}
	creds := c.credentialsFor(ctx)

	countURL := fmt.Sprintf("%s/api/handles?prefix=%s&pageSize=0", c.base, url.QueryEscape(prefix))
	resp, err := c.do(ctx, http.MethodGet, countURL, creds, nil)
	if err != nil || resp.Status != http.StatusOK {
		return nil, domainerrors.Newf(domainerrors.CodeRegistrationFailed, "handle listing for %s failed", prefix)
	}
	var count struct {
		Data struct {
			TotalCount int `json:"totalCount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &count); err != nil {
		return nil, fmt.Errorf("decode handle count: %w", err)
	}

	const pageSize = 1000
	pages := (count.Data.TotalCount + pageSize - 1) / pageSize
	var handles []string
	for page := 0; page < pages; page++ {
		pageURL := fmt.Sprintf("%s/api/handles?prefix=%s&page=%d&pageSize=%d",
			c.base, url.QueryEscape(prefix), page, pageSize)
		resp, err := c.do(ctx, http.MethodGet, pageURL, creds, nil)
		if err != nil || resp.Status != http.StatusOK {
			c.log.Error("handle listing page failed", zap.String("prefix", prefix), zap.Int("page", page))
			return handles, domainerrors.Newf(domainerrors.CodeRegistrationFailed, "handle listing for %s failed", prefix)
		}
		var body struct {
			Data struct {
				Handles []string `json:"handles"`
			} `json:"data"`
		}
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return handles, fmt.Errorf("decode handle page: %w", err)
		}
		handles = append(handles, body.Data.Handles...)
	}
	// Handles are case-insensitive; pages can overlap under concurrent writes.
	return platformstrings.DedupeAndTrimLower(handles), nil
}

func (c *Client) credentialsFor(ctx context.Context) Credentials {
	if c.creds != nil {
		if creds, ok := c.creds.CredentialsFor(ctx, requestcontext.ActorFrom(ctx)); ok {
			return creds
		}
	}
	return c.serviceCreds
}

func (c *Client) handleURL(doi, query string) string {
	u := c.base + "/api/handles/" + doi
	if query != "" {
		u += "?" + query
	}
	return u
}

func (c *Client) do(ctx context.Context, method, rawURL string, creds Credentials, body []byte) (Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return Response{}, fmt.Errorf("build handle request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	}
	req.SetBasicAuth("300:"+creds.Username, creds.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read handle response: %w", err)
	}
	return Response{Status: resp.StatusCode, Body: respBody}, nil
}
