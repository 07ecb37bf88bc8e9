package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ghalamif/databridge/internal/app/retry"
	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

type AASConfig struct {
	SubmodelEndpoint   string            `yaml:"submodel_endpoint"`
	IDShortPath        string            `yaml:"id_short_path"`
	Method             string            `yaml:"method"`
	Timeout            time.Duration     `yaml:"timeout"`
	MaxWritesPerSecond float64           `yaml:"max_writes_per_second"`
	Headers            map[string]string `yaml:"headers"`
}

func (c *AASConfig) ApplyDefaults() {
	if c.Method == "" {
		c.Method = http.MethodPatch
	}
	c.Method = strings.ToUpper(c.Method)
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
}

func (c *AASConfig) Validate() error {
	if c.SubmodelEndpoint == "" {
		return errors.New("submodel_endpoint is required")
	}
	u, err := url.Parse(c.SubmodelEndpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid submodel_endpoint %q", c.SubmodelEndpoint)
	}
	if strings.Trim(c.IDShortPath, ".") == "" {
		return errors.New("id_short_path is required")
	}
	switch c.Method {
	case http.MethodPatch, http.MethodPut, http.MethodPost:
	default:
		return fmt.Errorf("unsupported method %q", c.Method)
	}
	if c.Timeout < 0 || c.MaxWritesPerSecond < 0 {
		return errors.New("timeout and max_writes_per_second must be >= 0")
	}
	return nil
}

// ConnectionURI is the $value endpoint of the target submodel element.
func (c *AASConfig) ConnectionURI() string {
	return strings.TrimRight(c.SubmodelEndpoint, "/") +
		"/submodel-elements/" + url.PathEscape(c.IDShortPath) + "/$value"
}

var _ ports.Descriptor = (*AASConfig)(nil)

// AASSink writes each payload as the value of one submodel element.
type AASSink struct {
	target  string
	method  string
	headers map[string]string
	client  *http.Client
}

func NewAASSink(cfg AASConfig, client *http.Client) (*AASSink, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &AASSink{
		target:  cfg.ConnectionURI(),
		method:  cfg.Method,
		headers: cfg.Headers,
		client:  client,
	}, nil
}

func (a *AASSink) Name() string { return "aas" }

func (a *AASSink) Target() string { return a.target }

func (a *AASSink) Write(ctx context.Context, env *domain.Envelope) error {
	if env == nil {
		return nil
	}
	body, err := encodePayload(env.Payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, a.method, a.target, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", a.method, a.target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err = fmt.Errorf("%s %s: unexpected status %s", a.method, a.target, resp.Status)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}

func (a *AASSink) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ ports.Sink = (*AASSink)(nil)
