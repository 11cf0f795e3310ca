package collector

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tems/tems/agent/internal/config"
	"github.com/tems/tems/pkg/risk"
	"github.com/tems/tems/pkg/types"
)

const (
	defaultCollectTimeout = 10 * time.Second

	// maxResponseBytes bounds any single BMC or exporter response.
	maxResponseBytes = 16 << 20
)

// ServiceCollector is the service name of the event emitted when a
// collection cycle fails.
const ServiceCollector = types.ServiceCollector

// Batch is the output of one collection cycle for a single source.
type Batch struct {
	SourceID    string
	SourceType  string
	Vendor      string
	Host        string
	CollectedAt time.Time

	// Events are the validated events collected this cycle, in source order.
	Events []risk.LogEvent

	// Skipped counts records that failed validation and were dropped.
	Skipped int

	// Cert is set when the source has check_cert enabled and an https endpoint.
	Cert *types.CertStatus

	// Err is non-nil if the collection itself failed (connectivity, auth,
	// parse). A failed batch still carries one error event.
	Err error
}

// Collector is the common interface implemented by every source kind.
type Collector interface {
	Collect(ctx context.Context) (*Batch, error)
}

// New returns the appropriate Collector for the given source configuration.
// It builds the HTTP client once and reuses it across collection calls.
func New(src config.Source) (Collector, error) {
	var c Collector
	switch src.Type {
	case "redfish":
		c = &redfishCollector{src: src, client: buildHTTPClient(src)}
	case "prometheus":
		c = &promCollector{src: src, client: buildHTTPClient(src)}
	case "ipmi":
		c = &ipmiCollector{src: src, run: runCommand}
	default:
		return nil, fmt.Errorf("collector: unsupported type %q", src.Type)
	}
	if src.CheckCert {
		c = &certCollector{inner: c, src: src}
	}
	return c, nil
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the source's auth and TLS settings.
func buildHTTPClient(src config.Source) *http.Client {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // BMCs ship self-signed certs
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: src.Auth,
		},
		Timeout: defaultCollectTimeout,
	}
}

// get performs an HTTP GET and returns the response body. Non-200 responses
// are errors.
func get(ctx context.Context, client *http.Client, url, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// getJSON GETs url and decodes the JSON body into v.
func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	body, err := get(ctx, client, url, "application/json")
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(io.LimitReader(body, maxResponseBytes)).Decode(v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// newBatch initialises an empty Batch for src.
func newBatch(src config.Source, now time.Time) *Batch {
	return &Batch{
		SourceID:    src.ID,
		SourceType:  src.Type,
		Vendor:      src.Vendor,
		Host:        src.EventHost(),
		CollectedAt: now,
	}
}

// add validates raws and appends the survivors. Invalid records are counted
// and dropped; one bad BMC entry must not hide the rest.
func (b *Batch) add(raws ...risk.RawEvent) {
	for _, r := range raws {
		ev, err := risk.Parse(r)
		if err != nil {
			b.Skipped++
			slog.Debug("collector: dropping invalid record", "source", b.SourceID, "err", err)
			continue
		}
		b.Events = append(b.Events, ev)
	}
}

// fail records err on the batch and appends the collector error event.
func (b *Batch) fail(err error) {
	b.Err = err
	b.Events = append(b.Events, risk.LogEvent{
		Timestamp: b.CollectedAt,
		Host:      b.Host,
		Service:   ServiceCollector,
		Level:     risk.LevelError,
		Message:   err.Error(),
	})
}

// bmcLevel maps BMC severity vocabularies onto level text. Redfish uses
// OK/Warning/Critical and ipmitool prints free text; anything unrecognised
// is informational.
func bmcLevel(s string) string {
	if lv, ok := risk.ParseLevel(s); ok {
		return lv.String()
	}
	return risk.LevelInfo.String()
}
