// Package httpadapter is an example remote.Adapter that exchanges
// operations with a JSON HTTP API, retrying transport failures with
// exponential backoff before giving up on a request.
package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/kong/go-offline-sync/pkg/op"
	"github.com/kong/go-offline-sync/pkg/remote"
)

// Config configures an Adapter.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.com/v1". Create
	// posts to BaseURL + "/" + EntityType; Update, Delete and
	// FetchRemoteState use BaseURL + "/" + EntityType + "/" + EntityID.
	BaseURL string

	// HTTPClient is the underlying client retryablehttp wraps. A default
	// is used when nil.
	HTTPClient *http.Client

	// MaxRetries bounds the retryablehttp layer's transport-level retries
	// (connection errors, 5xx). Defaults to 4.
	MaxRetries int
}

// Adapter dispatches operations over HTTP, presenting Operation.ID as an
// idempotency header so a retried request that already landed on the server
// is safe to resend.
type Adapter struct {
	entityType string
	baseURL    string
	client     *retryablehttp.Client
	backoff    func() backoff.BackOff
}

// New builds an Adapter for entityType.
func New(entityType string, cfg Config) *Adapter {
	client := retryablehttp.NewClient()
	client.Logger = nil
	if cfg.HTTPClient != nil {
		client.HTTPClient = cfg.HTTPClient
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 4
	}
	client.RetryMax = maxRetries

	return &Adapter{
		entityType: entityType,
		baseURL:    cfg.BaseURL,
		client:     client,
		backoff:    defaultBackOff,
	}
}

// defaultBackOff is a 1s/3s/9s/27s randomized exponential schedule (four
// retries), used around
// the outer retryablehttp call so a request the HTTP layer won't retry on
// its own still gets a few application-level attempts.
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 3
	return backoff.WithMaxRetries(b, 4)
}

// EntityType implements remote.Adapter.
func (a *Adapter) EntityType() string { return a.entityType }

// Create implements remote.Adapter.
func (a *Adapter) Create(ctx context.Context, o op.Operation) (remote.SyncResult, error) {
	return a.send(ctx, http.MethodPost, a.entityURL(o.EntityType, ""), o)
}

// Update implements remote.Adapter.
func (a *Adapter) Update(ctx context.Context, o op.Operation) (remote.SyncResult, error) {
	return a.send(ctx, http.MethodPut, a.entityURL(o.EntityType, o.EntityID), o)
}

// Delete implements remote.Adapter.
func (a *Adapter) Delete(ctx context.Context, o op.Operation) (remote.SyncResult, error) {
	return a.send(ctx, http.MethodDelete, a.entityURL(o.EntityType, o.EntityID), o)
}

// Custom implements remote.Adapter. This example adapter has no custom
// operations.
func (a *Adapter) Custom(ctx context.Context, o op.Operation) (remote.SyncResult, error) {
	return remote.Failure("unimplemented custom operation", false), nil
}

// FetchRemoteState implements remote.Adapter.
func (a *Adapter) FetchRemoteState(ctx context.Context, entityID string) (op.Payload, bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, a.entityURL(a.entityType, entityID), nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("httpadapter: fetch %s: status %d", entityID, resp.StatusCode)
	}

	var payload op.Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (a *Adapter) entityURL(entityType, entityID string) string {
	if entityID == "" {
		return a.baseURL + "/" + entityType
	}
	return a.baseURL + "/" + entityType + "/" + entityID
}

// send issues one HTTP request for o, retrying the whole request per
// a.backoff when the error returned is retryable. A successful HTTP
// response never triggers a retry; only transport failures backoff.Retry
// can see do.
func (a *Adapter) send(ctx context.Context, method, url string, o op.Operation) (remote.SyncResult, error) {
	body, err := json.Marshal(o.Payload)
	if err != nil {
		return remote.SyncResult{}, fmt.Errorf("httpadapter: marshal payload: %w", err)
	}

	var result remote.SyncResult
	operation := func() error {
		req, err := retryablehttp.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", o.ID)

		resp, err := a.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		result, err = decodeResult(resp)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(operation, a.backoff()); err != nil {
		return remote.Failure(err.Error(), true), nil
	}
	return result, nil
}

func decodeResult(resp *http.Response) (remote.SyncResult, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return remote.SyncResult{}, err
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		var payload op.Payload
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return remote.SyncResult{}, err
			}
		}
		return remote.Conflict(payload), nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var payload op.Payload
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return remote.SyncResult{}, err
			}
		}
		return remote.Success(payload), nil

	case resp.StatusCode >= 500:
		return remote.Failure(fmt.Sprintf("server error: status %d", resp.StatusCode), true), nil

	default:
		return remote.Failure(fmt.Sprintf("request failed: status %d: %s", resp.StatusCode, string(raw)), false), nil
	}
}
