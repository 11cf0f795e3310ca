package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tems/tems/pkg/risk"
	"github.com/tems/tems/server/internal/compute"
)

// numericFields maps condition field names to their value in a result.
var numericFields = map[string]func(r *compute.Result) float64{
	"score":                 func(r *compute.Result) float64 { return r.Prediction.Score },
	"event_count":           func(r *compute.Result) float64 { return float64(r.Prediction.Features.N) },
	"error_count":           func(r *compute.Result) float64 { return float64(r.Prediction.Features.ErrorCount) },
	"critical_count":        func(r *compute.Result) float64 { return float64(r.Prediction.Features.CriticalCount) },
	"warning_count":         func(r *compute.Result) float64 { return float64(r.Prediction.Features.WarningCount) },
	"service_concentration": func(r *compute.Result) float64 { return r.Prediction.Features.ServiceConcentration },
	"host_concentration":    func(r *compute.Result) float64 { return r.Prediction.Features.HostConcentration },
	"uptime_pct":            func(r *compute.Result) float64 { return r.UptimePct },
}

// condition is a parsed "field op value" expression.
type condition struct {
	field string
	op    string

	threshold float64    // numeric fields
	label     risk.Label // field == "label"
}

// parseCondition parses expressions of the form
//
//	score > 0.5
//	critical_count >= 1
//	service_concentration > 0.8
//	uptime_pct < 90
//	cert_days_left < 14
//	label == degraded
func parseCondition(s string) (condition, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("want \"field op value\", got %q", s)
	}
	c := condition{field: parts[0], op: parts[1]}

	if c.field == "label" {
		if c.op != "==" && c.op != "!=" {
			return condition{}, fmt.Errorf("label supports == and !=, got %q", c.op)
		}
		lb, ok := risk.ParseLabel(parts[2])
		if !ok {
			return condition{}, fmt.Errorf("unknown label %q", parts[2])
		}
		c.label = lb
		return c, nil
	}

	if _, ok := numericFields[c.field]; !ok && c.field != "cert_days_left" {
		return condition{}, fmt.Errorf("unknown field %q", c.field)
	}
	switch c.op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return condition{}, fmt.Errorf("unknown operator %q", c.op)
	}
	v, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return condition{}, fmt.Errorf("threshold %q: %w", parts[2], err)
	}
	c.threshold = v
	return c, nil
}

// eval returns whether the condition holds for r and the value it compared.
// cert_days_left never fires for a source without a certificate check.
func (c condition) eval(r *compute.Result) (bool, float64) {
	switch c.field {
	case "label":
		var v float64
		if r.Prediction.Degraded() {
			v = 1
		}
		eq := r.Prediction.Label == c.label
		if c.op == "!=" {
			return !eq, v
		}
		return eq, v

	case "cert_days_left":
		if r.Cert == nil || r.Cert.NotAfter == "" {
			return false, 0
		}
		v := float64(r.Cert.DaysLeft)
		return compareFloat(v, c.op, c.threshold), v

	default:
		v := numericFields[c.field](r)
		return compareFloat(v, c.op, c.threshold), v
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
