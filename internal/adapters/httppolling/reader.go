package httppolling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ghalamif/databridge/internal/ports"
)

const maxBodyBytes = 8 << 20

type credentials struct {
	username string
	password string
}

// Reader performs one GET per poll against the configured endpoint.
type Reader struct {
	target  string
	creds   *credentials
	headers map[string]string
	client  *http.Client
}

// NewReader interprets a URI built by Config.ConnectionURI. Credential
// parameters are removed from the request URL and, when the method is Basic,
// presented on every request without waiting for a challenge.
func NewReader(connectionURI string, headers map[string]string, client *http.Client) (*Reader, error) {
	target, creds, err := splitCredentials(connectionURI)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Reader{
		target:  target,
		creds:   creds,
		headers: headers,
		client:  client,
	}, nil
}

func (r *Reader) Open(context.Context) error { return nil }

func (r *Reader) Read(ctx context.Context) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.target, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if r.creds != nil {
		req.SetBasicAuth(r.creds.username, r.creds.password)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %s", r.target, resp.Status)
	}
	return body, nil
}

func (r *Reader) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// Target is the request URL with credential parameters removed.
func (r *Reader) Target() string { return r.target }

func splitCredentials(uri string) (string, *credentials, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", nil, fmt.Errorf("parse connection uri: %w", err)
	}
	q := u.Query()
	user, pass := q.Get(ParamUsername), q.Get(ParamPassword)
	method := q.Get(ParamMethod)
	if !q.Has(ParamUsername) && !q.Has(ParamPassword) {
		return uri, nil, nil
	}

	for _, p := range []string{ParamUsername, ParamPassword, ParamMethod, ParamPreemptive} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()

	if user == "" || pass == "" {
		return "", nil, errors.New("connection uri carries incomplete credentials")
	}
	if method != "" && !strings.EqualFold(method, "Basic") {
		return "", nil, fmt.Errorf("unsupported auth method %q", method)
	}
	return u.String(), &credentials{username: user, password: pass}, nil
}

var _ ports.Reader = (*Reader)(nil)
