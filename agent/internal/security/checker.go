package security

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/tems/tems/agent/internal/config"
	"github.com/tems/tems/pkg/risk"
	"github.com/tems/tems/pkg/types"
)

// ServiceTLS is the service of events raised by certificate checks.
const ServiceTLS = "tls"

const dialTimeout = 10 * time.Second

// Check dials the TLS endpoint for the given source and returns a CertStatus
// describing the leaf certificate.
//
// Returns nil for non-HTTPS endpoints; there is no certificate to inspect.
func Check(ctx context.Context, src config.Source, now time.Time) *types.CertStatus {
	u, err := url.Parse(src.Endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &types.CertStatus{
		Endpoint: src.Endpoint,
		AuthType: src.Auth.Mode,
	}
	if cs.AuthType == "" {
		cs.AuthType = "none"
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	// Verification is skipped on purpose: an expired certificate must still
	// be read to report how long ago it expired.
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config:    &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // inspection only
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = types.CertUnreachable
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = types.CertUnreachable
		return cs
	}

	leaf := peerCerts[0]
	daysLeft := leaf.NotAfter.Sub(now).Hours() / 24

	cs.NotAfter = leaf.NotAfter.UTC().Format(time.RFC3339)
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int32(math.Floor(daysLeft))

	switch {
	case daysLeft <= 0:
		cs.Status = types.CertExpired
	case daysLeft <= types.CertExpiringDays:
		cs.Status = types.CertExpiring
	default:
		cs.Status = types.CertValid
	}

	return cs
}

// Event turns a certificate status into a log event for host. Expired
// certificates are errors and expiring ones warnings; other states produce
// no event.
func Event(cs *types.CertStatus, host string, now time.Time) (risk.RawEvent, bool) {
	if cs == nil {
		return risk.RawEvent{}, false
	}
	var (
		level risk.Level
		msg   string
	)
	switch cs.Status {
	case types.CertExpired:
		level = risk.LevelError
		msg = fmt.Sprintf("certificate for %s expired %s (issuer %q)", cs.Endpoint, cs.NotAfter, cs.Issuer)
	case types.CertExpiring:
		level = risk.LevelWarning
		msg = fmt.Sprintf("certificate for %s expires in %d days (issuer %q)", cs.Endpoint, cs.DaysLeft, cs.Issuer)
	default:
		return risk.RawEvent{}, false
	}
	return risk.RawEvent{
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Host:      host,
		Service:   ServiceTLS,
		Level:     level.String(),
		Message:   msg,
	}, true
}
