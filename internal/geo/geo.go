// Package geo resolves the host's public IP and geolocation from a fixed,
// ordered list of public HTTP providers.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/stone-age-io/factagent/internal/probe"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// browserUserAgent is sent with every request; some providers reject
// non-browser clients
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// maxBodySize bounds a provider response
const maxBodySize = 1 << 20

// Provider is one geolocation endpoint
type Provider struct {
	Name    string
	URL     string
	Site    string // identifier reported as ipsite
	Charset string // "" (UTF-8) or "gbk"
}

// Result is the first successful provider body tagged with its site. The
// zero Result encodes as {}.
type Result struct {
	IPSite string          `json:"ipsite,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Resolver queries providers in order until one returns a JSON body
type Resolver struct {
	providers []Provider
	client    *http.Client
	timeout   time.Duration
	logger    *zap.Logger
	observer  probe.Observer
}

// NewResolver creates a resolver. timeout bounds each provider request.
func NewResolver(providers []Provider, client *http.Client, timeout time.Duration, logger *zap.Logger, observer probe.Observer) *Resolver {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		providers: providers,
		client:    client,
		timeout:   timeout,
		logger:    logger,
		observer:  observer,
	}
}

// Resolve returns the first provider's result. When every provider fails
// it returns the empty Result and ok == false.
func (r *Resolver) Resolve(ctx context.Context) (Result, bool) {
	probes := make([]probe.Probe[Result], 0, len(r.providers))
	for _, p := range r.providers {
		probes = append(probes, r.probe(p))
	}

	res := probe.Chain[Result]{
		Family:   "ip",
		Probes:   probes,
		Default:  func() Result { return Result{} },
		Timeout:  r.timeout,
		Logger:   r.logger,
		Observer: r.observer,
	}.Resolve(ctx)

	if res.OK {
		r.logger.Debug("Public IP resolved", zap.String("provider", res.Source))
	}
	return res.Value, res.OK
}

func (r *Resolver) probe(p Provider) probe.Probe[Result] {
	return probe.Probe[Result]{Name: p.Name, Run: func(ctx context.Context) (Result, error) {
		body, err := r.fetch(ctx, p)
		if err != nil {
			return Result{}, err
		}
		if !json.Valid(body) {
			return Result{}, errors.New("response is not JSON")
		}
		return Result{IPSite: p.Site, Data: json.RawMessage(body)}, nil
	}}
}

func (r *Resolver) fetch(ctx context.Context, p Provider) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return decodeBody(body, p.Charset)
}

// decodeBody transcodes a GBK body to UTF-8. Bodies that already are valid
// UTF-8 pass through, as some mirrors serve UTF-8 despite the declared charset.
func decodeBody(body []byte, charset string) ([]byte, error) {
	body = []byte(strings.TrimSpace(string(body)))
	if !strings.EqualFold(charset, "gbk") || utf8.Valid(body) {
		return body, nil
	}
	out, err := simplifiedchinese.GBK.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode gbk body: %w", err)
	}
	return out, nil
}
