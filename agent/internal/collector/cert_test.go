package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tems/tems/agent/internal/config"
	"github.com/tems/tems/pkg/types"
)

func TestNew_CheckCertWrapsCollector(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Members": []}`))
	}))
	defer srv.Close()

	c, err := New(config.Source{
		ID: "bmc", Type: "redfish", Endpoint: srv.URL, CheckCert: true,
		TLS: config.TLSConfig{InsecureSkipVerify: true},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := c.(*certCollector); !ok {
		t.Fatalf("New() returned %T, want *certCollector", c)
	}

	b, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if b.Err != nil {
		t.Fatalf("b.Err = %v", b.Err)
	}
	if b.Cert == nil {
		t.Fatal("expected a cert status for an https endpoint")
	}
	if b.Cert.Status != types.CertValid {
		t.Errorf("cert status = %q, want valid", b.Cert.Status)
	}
	if len(b.Events) != 0 {
		t.Errorf("a valid certificate should add no events, got %+v", b.Events)
	}
}

func TestNew_UnsupportedType(t *testing.T) {
	if _, err := New(config.Source{ID: "x", Type: "snmp"}); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}
