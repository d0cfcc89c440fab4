// Package credentials acquires the short-lived secret a transport needs
// to open a realtime channel. Absence of a secret is a defined failure,
// not an exception: callers abort the connect attempt and fall back to
// the disconnected state.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrNoCredential = errors.New("no ephemeral credential provided by the server")

// Issuer hands out one short-lived credential per call.
type Issuer interface {
	Fetch(ctx context.Context) (string, error)
}

// EndpointIssuer fetches an ephemeral key from a session-issuing HTTP
// endpoint. The endpoint responds with {"client_secret": {"value": ...}};
// an empty value is reported as ErrNoCredential.
type EndpointIssuer struct {
	url        string
	httpClient *http.Client
}

type EndpointOption func(*EndpointIssuer)

func WithHTTPClient(client *http.Client) EndpointOption {
	return func(i *EndpointIssuer) { i.httpClient = client }
}

func NewEndpointIssuer(url string, opts ...EndpointOption) *EndpointIssuer {
	issuer := &EndpointIssuer{
		url:        url,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer
}

func (i *EndpointIssuer) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create credential request: %w", err)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch credential: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read credential response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("credential endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		ClientSecret struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal credential response: %w", err)
	}

	if parsed.ClientSecret.Value == "" {
		return "", ErrNoCredential
	}
	return parsed.ClientSecret.Value, nil
}

// StaticIssuer returns a fixed credential, for tests and local runs
// where the key is already known.
type StaticIssuer string

func (s StaticIssuer) Fetch(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}
