package shipper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/tems/tems/agent/internal/collector"
	"github.com/tems/tems/agent/internal/config"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second

	// maxBatchesPerExport bounds the size of one ExportLogsServiceRequest.
	maxBatchesPerExport = 100
)

// Shipper buffers collection batches and exports them to tems-server as
// OTLP logs. Ship() is non-blocking; when the buffer is full the oldest
// batch is evicted. Run() must be called in a goroutine to drain the buffer
// and handle reconnection.
type Shipper struct {
	cfg    config.AgentConfig
	buf    chan *logspb.ResourceLogs
	dialFn dialFunc // injectable for tests
}

// dialFunc is the function signature used to open a gRPC connection.
type dialFunc func(ctx context.Context, endpoint string) (*grpc.ClientConn, error)

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) *Shipper {
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan *logspb.ResourceLogs, cfg.BufferSize),
		dialFn: defaultDial,
	}
}

// Ship converts a batch to OTLP and enqueues it. A batch without events is
// still shipped so the server counts the healthy cycle and refreshes the
// source's certificate status; only batches with no source ID are ignored.
// If the buffer is full the oldest entry is evicted to make room.
func (s *Shipper) Ship(b *collector.Batch) {
	if b == nil || b.SourceID == "" {
		return
	}
	s.enqueue(toResourceLogs(b), b.SourceID)
}

func (s *Shipper) enqueue(rl *logspb.ResourceLogs, sourceID string) {
	select {
	case s.buf <- rl:
	default:
		select {
		case <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest batch",
				"source", sourceID, "buffer_cap", cap(s.buf))
		default:
		}
		select {
		case s.buf <- rl:
		default:
		}
	}
}

// Run exports buffered batches every ShipInterval. It reconnects with
// exponential backoff when the connection is lost and blocks until ctx is
// cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg.ServerEndpoint)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.ServerEndpoint,
				"err", err,
				"retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		slog.Info("shipper: connected", "endpoint", s.cfg.ServerEndpoint)
		bo.reset()

		err = s.drain(ctx, collogspb.NewLogsServiceClient(conn))
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.ServerEndpoint,
			"err", err,
			"retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// drain exports the buffer on every tick until an export fails with a
// transient error or ctx is cancelled.
func (s *Shipper) drain(ctx context.Context, client collogspb.LogsServiceClient) error {
	ticker := time.NewTicker(s.cfg.ShipInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for {
			batch := s.take(maxBatchesPerExport)
			if len(batch) == 0 {
				break
			}
			if err := s.export(ctx, client, batch); err != nil {
				return err
			}
		}
	}
}

// take removes up to n queued batches without blocking.
func (s *Shipper) take(n int) []*logspb.ResourceLogs {
	var out []*logspb.ResourceLogs
	for len(out) < n {
		select {
		case rl := <-s.buf:
			out = append(out, rl)
		default:
			return out
		}
	}
	return out
}

func (s *Shipper) export(ctx context.Context, client collogspb.LogsServiceClient, batch []*logspb.ResourceLogs) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	resp, err := client.Export(sendCtx, &collogspb.ExportLogsServiceRequest{ResourceLogs: batch})
	if err != nil {
		if isPermanentError(err) {
			slog.Error("shipper: permanent export error, discarding batches",
				"batches", len(batch), "err", err)
			return nil
		}
		// Put the batches back if there's room; the rest are lost.
		for _, rl := range batch {
			select {
			case s.buf <- rl:
			default:
			}
		}
		return fmt.Errorf("export: %w", err)
	}

	if ps := resp.GetPartialSuccess(); ps.GetRejectedLogRecords() > 0 {
		slog.Warn("shipper: server rejected records",
			"rejected", ps.GetRejectedLogRecords(), "message", ps.GetErrorMessage())
	} else {
		slog.Debug("shipper: batches delivered", "batches", len(batch))
	}
	return nil
}

// isPermanentError returns true for gRPC errors that indicate the request
// itself is invalid and should not be retried.
func isPermanentError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// defaultDial creates a lazily connecting gRPC client for endpoint.
func defaultDial(_ context.Context, endpoint string) (*grpc.ClientConn, error) {
	return grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// ±25% jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
