package receiver

import (
	"context"
	"log/slog"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tems/tems/server/internal/alerts"
	"github.com/tems/tems/server/internal/compute"
	"github.com/tems/tems/server/internal/metrics"
	"github.com/tems/tems/server/internal/store"
)

// Transport labels used in metrics and logs.
const (
	TransportGRPC = "grpc"
	TransportHTTP = "http"
)

// Receiver implements the OTLP LogsService. Every accepted export is decoded
// into per-source updates, scored by the compute engine, stored, and checked
// against the alert rules.
type Receiver struct {
	collogspb.UnimplementedLogsServiceServer

	engine  *compute.Engine
	store   *store.Store
	alerts  *alerts.Engine
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a Receiver. al and m may be nil.
func New(eng *compute.Engine, st *store.Store, al *alerts.Engine, m *metrics.Metrics) *Receiver {
	return &Receiver{
		engine:  eng,
		store:   st,
		alerts:  al,
		metrics: m,
		now:     time.Now,
	}
}

// Export is the unary RPC called by tems-agent instances and any other OTLP
// log producer. An invalid record rejects the whole request with
// codes.InvalidArgument and nothing is stored.
func (r *Receiver) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	if err := r.Ingest(ctx, req, TransportGRPC); err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &collogspb.ExportLogsServiceResponse{}, nil
}

// Ingest decodes req and applies it. It returns a *risk.ValidationError for
// an invalid record, or the context's error if ctx ends mid-way.
func (r *Receiver) Ingest(ctx context.Context, req *collogspb.ExportLogsServiceRequest, transport string) error {
	updates, n, err := Decode(req)
	if err != nil {
		r.metrics.Export(transport, false, n)
		slog.Warn("receiver: export rejected", "transport", transport, "records", n, "err", err)
		return err
	}
	r.metrics.Export(transport, true, n)

	for _, u := range updates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.apply(u)
	}
	return nil
}

func (r *Receiver) apply(u compute.Update) {
	start := time.Now()
	res := r.engine.Process(u, r.now())
	r.metrics.ObserveScore(time.Since(start))

	r.store.Put(res)
	r.metrics.Source(res.SourceID, res.Prediction.Score, res.EventCount, res.Prediction.Degraded())
	if r.alerts != nil {
		r.alerts.Evaluate(res)
	}

	slog.Debug("receiver: source scored",
		"source_id", res.SourceID,
		"events", len(u.Events),
		"window", res.EventCount,
		"score", res.Prediction.Score,
		"label", res.Prediction.Label.String(),
	)
}
