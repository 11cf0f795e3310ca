package api

import (
	"fmt"
	"sort"

	"github.com/tems/tems/pkg/risk"
	"github.com/tems/tems/pkg/types"
	"github.com/tems/tems/server/internal/compute"
)

// DiagnosticHint is one human-readable insight about a source's window.
// Dashboards display these as chips on the source card; Detail is the full
// explanation in plain English.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip (at most five words).
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional number associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// Hint levels, in display order.
const (
	hintCritical = "critical"
	hintWarning  = "warning"
	hintInfo     = "info"
	hintOK       = "ok"
)

var hintRank = map[string]int{hintCritical: 0, hintWarning: 1, hintInfo: 2, hintOK: 3}

// dominantShare is the concentration at which one service or host is called
// out as the main contributor.
const dominantShare = 0.5

// computeDiagnostics derives hints from a source's latest result, ordered
// critical first, then warnings, then info.
func computeDiagnostics(r *compute.Result) []DiagnosticHint {
	var hints []DiagnosticHint
	fv := r.Prediction.Features

	// Collection failure
	if r.LastError != "" {
		hints = append(hints, DiagnosticHint{
			Key:   "collector_failed",
			Level: hintCritical,
			Title: "Can't reach source",
			Detail: fmt.Sprintf(
				"The agent's last collection from this source failed with: %q. "+
					"Check that the endpoint is reachable and the credentials are correct. "+
					"The score below still reflects events collected before the failure.",
				r.LastError,
			),
		})
		hints = append(hints, sourceTypeHints(r)...)
	}

	// Empty window
	if fv.N == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "empty_window",
			Level: hintInfo,
			Title: "No recent events",
			Detail: "No log events from this source fall inside the scoring window. " +
				"A quiet source scores zero. If you expected events, check the agent's " +
				"collect interval and the source's log service.",
		})
	}

	// Degraded label
	if r.Prediction.Degraded() {
		v := r.Prediction.Score
		hints = append(hints, DiagnosticHint{
			Key:   "degraded",
			Level: hintCritical,
			Title: fmt.Sprintf("Risk score %.2f", v),
			Detail: fmt.Sprintf(
				"The window's risk score is %.2f, above the %.1f threshold. "+
					"Every event adds 0.2 to the score and each error or critical event "+
					"another 0.15; the window holds %d %s, %d of them severe.",
				v, risk.DegradedThreshold, fv.N, plural(fv.N, "event", "events"), fv.Severe(),
			),
			Value: &v,
		})
	}

	// Critical events
	if fv.CriticalCount > 0 {
		v := float64(fv.CriticalCount)
		hints = append(hints, DiagnosticHint{
			Key:   "critical_events",
			Level: hintCritical,
			Title: fmt.Sprintf("%d critical %s", fv.CriticalCount, plural(fv.CriticalCount, "event", "events")),
			Detail: fmt.Sprintf(
				"%d of the %d events in the window are critical. On a BMC these are usually "+
					"power, thermal or memory faults that need hands-on attention.",
				fv.CriticalCount, fv.N,
			),
			Value: &v,
		})
	}

	// Error events
	if fv.ErrorCount > 0 {
		v := float64(fv.ErrorCount)
		hints = append(hints, DiagnosticHint{
			Key:   "error_events",
			Level: hintWarning,
			Title: fmt.Sprintf("%d error %s", fv.ErrorCount, plural(fv.ErrorCount, "event", "events")),
			Detail: fmt.Sprintf(
				"%d of the %d events in the window are errors. A single error is often a "+
					"transient fault, while a growing count points at failing hardware.",
				fv.ErrorCount, fv.N,
			),
			Value: &v,
		})
	}

	// Dominant service or host
	if fv.N > 1 && fv.Severe() > 0 {
		if fv.ServiceConcentration >= dominantShare {
			v := fv.ServiceConcentration * 100
			hints = append(hints, DiagnosticHint{
				Key:   "dominant_service",
				Level: hintInfo,
				Title: fmt.Sprintf("Mostly %s", fv.TopService),
				Detail: fmt.Sprintf(
					"%.0f%% of the window comes from service %q. Start troubleshooting there.",
					v, fv.TopService,
				),
				Value: &v,
			})
		}
		if fv.HostConcentration >= dominantShare && fv.HostConcentration < 1 {
			v := fv.HostConcentration * 100
			hints = append(hints, DiagnosticHint{
				Key:   "dominant_host",
				Level: hintInfo,
				Title: fmt.Sprintf("Mostly host %s", fv.TopHost),
				Detail: fmt.Sprintf(
					"%.0f%% of the window comes from host %q.", v, fv.TopHost,
				),
				Value: &v,
			})
		}
	}

	// Uptime
	if r.UptimePct < 100 {
		v := r.UptimePct
		level := hintInfo
		switch {
		case v < 70:
			level = hintCritical
		case v < 90:
			level = hintWarning
		}
		hints = append(hints, DiagnosticHint{
			Key:   "uptime",
			Level: level,
			Title: fmt.Sprintf("%.0f%% uptime", v),
			Detail: fmt.Sprintf(
				"The agent reached this source on %.0f%% of its recent collection cycles "+
					"(the last 20 are tracked). A brief dip is often a BMC reset; "+
					"a sustained one means the management network or the controller is unstable.",
				v,
			),
			Value: &v,
		})
	}

	// Certificate
	if c := r.Cert; c != nil {
		if h, ok := certHint(c); ok {
			hints = append(hints, h)
		}
	}

	if len(hints) == 0 {
		v := r.Prediction.Score
		hints = append(hints, DiagnosticHint{
			Key:   "healthy",
			Level: hintOK,
			Title: "All clear",
			Detail: fmt.Sprintf(
				"Risk score %.2f across %d %s with no errors or critical events.",
				v, fv.N, plural(fv.N, "event", "events"),
			),
			Value: &v,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return hintRank[hints[i].Level] < hintRank[hints[j].Level]
	})
	return hints
}

func certHint(c *types.CertStatus) (DiagnosticHint, bool) {
	v := float64(c.DaysLeft)
	switch c.Status {
	case types.CertExpired:
		return DiagnosticHint{
			Key:    "cert_expired",
			Level:  hintCritical,
			Title:  "Certificate expired",
			Detail: fmt.Sprintf("The endpoint's TLS certificate (issuer %q) expired on %s.", c.Issuer, c.NotAfter),
			Value:  &v,
		}, true
	case types.CertExpiring:
		return DiagnosticHint{
			Key:   "cert_expiring",
			Level: hintWarning,
			Title: fmt.Sprintf("Cert expires in %dd", c.DaysLeft),
			Detail: fmt.Sprintf(
				"The endpoint's TLS certificate (issuer %q) expires on %s. Renew it before "+
					"clients start rejecting the connection.",
				c.Issuer, c.NotAfter,
			),
			Value: &v,
		}, true
	case types.CertUnreachable:
		return DiagnosticHint{
			Key:    "cert_unreachable",
			Level:  hintInfo,
			Title:  "Cert check failed",
			Detail: "The agent could not complete a TLS handshake to inspect the certificate.",
		}, true
	}
	return DiagnosticHint{}, false
}

// sourceTypeHints returns collector-specific troubleshooting tips for a
// failing source.
func sourceTypeHints(r *compute.Result) []DiagnosticHint {
	switch r.SourceType {
	case "redfish":
		return []DiagnosticHint{{
			Key:   "redfish_tip",
			Level: hintInfo,
			Title: "Check Redfish access",
			Detail: "Redfish failures are usually a wrong BMC password, an account without " +
				"the Operator role, or a BMC that exposes its event log under a different path. " +
				"Set log_path if the SEL is not at /Systems/1/LogServices/SEL/Entries.",
		}}
	case "ipmi":
		return []DiagnosticHint{{
			Key:   "ipmi_tip",
			Level: hintInfo,
			Title: "Check ipmitool",
			Detail: "IPMI collection runs ipmitool on the agent host. Make sure it is installed, " +
				"that IPMI over LAN is enabled on the BMC, and that the password variable " +
				"named in password_env is set.",
		}}
	case "prometheus":
		return []DiagnosticHint{{
			Key:   "exporter_tip",
			Level: hintInfo,
			Title: "Check the exporter",
			Detail: "The exporter's /metrics endpoint did not answer. Check that the exporter " +
				"process is running and that its own scrape of the BMC is not timing out.",
		}}
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
