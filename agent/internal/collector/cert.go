package collector

import (
	"context"

	"github.com/tems/tems/agent/internal/config"
	"github.com/tems/tems/agent/internal/security"
)

// certCollector runs the TLS certificate check after its inner collector and
// folds the result into the batch.
type certCollector struct {
	inner Collector
	src   config.Source
}

func (c *certCollector) Collect(ctx context.Context) (*Batch, error) {
	b, err := c.inner.Collect(ctx)
	if err != nil || b == nil {
		return b, err
	}
	b.Cert = security.Check(ctx, c.src, b.CollectedAt)
	if raw, ok := security.Event(b.Cert, b.Host, b.CollectedAt); ok {
		b.add(raw)
	}
	return b, nil
}
