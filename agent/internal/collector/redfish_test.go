package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/tems/tems/agent/internal/config"
	"github.com/tems/tems/pkg/risk"
)

const selPage1 = `{
  "@odata.id": "/redfish/v1/Systems/1/LogServices/SEL/Entries",
  "Members": [
    {"Id": "1", "Created": "2024-09-13T12:34:56+00:00", "Message": "PSU1 input lost",
     "Severity": "Critical", "SensorType": "Power Supply"},
    {"Id": "2", "Created": "2024-09-13T12:35:10Z", "Message": "Fan2 speed low",
     "Severity": "Warning", "OriginOfCondition": {"@odata.id": "/redfish/v1/Chassis/1/Thermal"}}
  ],
  "Members@odata.nextLink": "/redfish/v1/Systems/1/LogServices/SEL/Entries?$skip=2"
}`

const selPage2 = `{
  "Members": [
    {"Id": "3", "DateTime": "2024-09-13T12:40:00Z", "OemRecordFormat": "Chassis intrusion cleared",
     "EntryType": "SEL"}
  ]
}`

func TestRedfishCollector_Collect(t *testing.T) {
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("$skip") == "2" {
			_, _ = w.Write([]byte(selPage2))
			return
		}
		if r.URL.Path != "/redfish/v1/Systems/1/LogServices/SEL/Entries" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(selPage1))
	}))
	defer srv.Close()

	t.Setenv("TEST_BMC_PASSWORD", "calvin")
	src := config.Source{
		ID: "r740", Type: "redfish", Vendor: "dell", Endpoint: srv.URL, Host: "node-1",
		Auth: config.AuthConfig{Mode: "basic", Username: "root", PasswordEnv: "TEST_BMC_PASSWORD"},
	}
	c, err := New(src)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	b, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if b.Err != nil {
		t.Fatalf("b.Err = %v", b.Err)
	}
	if user != "root" || pass != "calvin" {
		t.Errorf("basic auth: got %q/%q", user, pass)
	}
	if b.SourceID != "r740" || b.Vendor != "dell" || b.Host != "node-1" {
		t.Errorf("batch metadata: %+v", b)
	}
	if len(b.Events) != 3 {
		t.Fatalf("events: got %d, want 3", len(b.Events))
	}

	want := []struct {
		service string
		level   risk.Level
		message string
	}{
		{"Power Supply", risk.LevelCritical, "PSU1 input lost"},
		{"Thermal", risk.LevelWarning, "Fan2 speed low"},
		{"log", risk.LevelInfo, "Chassis intrusion cleared"},
	}
	for i, w := range want {
		ev := b.Events[i]
		if ev.Service != w.service || ev.Level != w.level || ev.Message != w.message || ev.Host != "node-1" {
			t.Errorf("event[%d] = %+v, want %+v", i, ev, w)
		}
	}
	if got := b.Events[0].Timestamp; !got.Equal(time.Date(2024, 9, 13, 12, 34, 56, 0, time.UTC)) {
		t.Errorf("event[0] timestamp = %v", got)
	}

	// A second cycle over the same log emits nothing new.
	b, err = c.Collect(context.Background())
	if err != nil {
		t.Fatalf("second Collect() error = %v", err)
	}
	if len(b.Events) != 0 {
		t.Errorf("second cycle: got %d events, want 0", len(b.Events))
	}
}

func TestRedfishCollector_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := &redfishCollector{
		src:    config.Source{ID: "r740", Type: "redfish", Endpoint: srv.URL},
		client: srv.Client(),
	}
	b, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if b.Err == nil {
		t.Fatal("expected b.Err for a 401 response")
	}
	if len(b.Events) != 1 {
		t.Fatalf("events: got %d, want 1", len(b.Events))
	}
	ev := b.Events[0]
	if ev.Service != ServiceCollector || ev.Level != risk.LevelError {
		t.Errorf("failure event = %+v", ev)
	}
}

// pagedSEL serves an oldest-first SEL of n one-entry pages. link renders the
// nextLink to page k.
func pagedSEL(t *testing.T, n int, link func(srvURL string, k int) string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/redfish/v1/Systems/1/LogServices/SEL/Entries" {
			http.NotFound(w, r)
			return
		}
		k, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
		coll := redfishCollection{Members: []redfishEntry{{
			ID:       strconv.Itoa(k + 1),
			Created:  time.Date(2024, 9, 13, 0, k, 0, 0, time.UTC).Format(time.RFC3339),
			Message:  "entry " + strconv.Itoa(k+1),
			Severity: "OK",
		}}}
		if k+1 < n {
			coll.NextLink = link(srv.URL, k+1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(coll)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRedfishCollector_ResumesPastPageLimit(t *testing.T) {
	const pages = maxRedfishPages + 1
	srv := pagedSEL(t, pages, func(_ string, k int) string {
		return "/redfish/v1/Systems/1/LogServices/SEL/Entries?$skip=" + strconv.Itoa(k)
	})
	c := &redfishCollector{
		src:    config.Source{ID: "r740", Type: "redfish", Endpoint: srv.URL, Host: "node-1"},
		client: srv.Client(),
	}

	want := []int{maxRedfishPages, 1, 0, 0}
	var last string
	for cycle, n := range want {
		b, err := c.Collect(context.Background())
		if err != nil || b.Err != nil {
			t.Fatalf("cycle %d: err=%v batch err=%v", cycle, err, b.Err)
		}
		if len(b.Events) != n {
			t.Errorf("cycle %d: got %d events, want %d", cycle, len(b.Events), n)
		}
		if len(b.Events) > 0 {
			last = b.Events[len(b.Events)-1].Message
		}
	}
	if want := "entry " + strconv.Itoa(pages); last != want {
		t.Errorf("last emitted = %q, want %q", last, want)
	}
}

func TestRedfishCollector_NextLinkForms(t *testing.T) {
	tests := []struct {
		name string
		link func(srvURL string, k int) string
	}{
		{"absolute path", func(_ string, k int) string {
			return "/redfish/v1/Systems/1/LogServices/SEL/Entries?$skip=" + strconv.Itoa(k)
		}},
		{"absolute url", func(u string, k int) string {
			return u + "/redfish/v1/Systems/1/LogServices/SEL/Entries?$skip=" + strconv.Itoa(k)
		}},
		{"query only", func(_ string, k int) string {
			return "?$skip=" + strconv.Itoa(k)
		}},
		{"relative path", func(_ string, k int) string {
			return "Entries?$skip=" + strconv.Itoa(k)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := pagedSEL(t, 3, tc.link)
			c := &redfishCollector{
				src:    config.Source{ID: "r740", Type: "redfish", Endpoint: srv.URL + "/", Host: "node-1"},
				client: srv.Client(),
			}
			b, err := c.Collect(context.Background())
			if err != nil || b.Err != nil {
				t.Fatalf("err=%v batch err=%v", err, b.Err)
			}
			if len(b.Events) != 3 {
				t.Errorf("got %d events, want 3", len(b.Events))
			}
		})
	}
}

func TestResolveNextLink(t *testing.T) {
	const (
		base    = "https://proxy.example/bmc1"
		current = "https://proxy.example/bmc1/redfish/v1/Systems/1/LogServices/SEL/Entries"
	)
	tests := []struct {
		link string
		want string
	}{
		{"", ""},
		{"/redfish/v1/Systems/1/LogServices/SEL/Entries?$skip=50",
			"https://proxy.example/bmc1/redfish/v1/Systems/1/LogServices/SEL/Entries?$skip=50"},
		{"https://10.0.0.5/redfish/v1/Systems/1/LogServices/SEL/Entries?$skip=50",
			"https://10.0.0.5/redfish/v1/Systems/1/LogServices/SEL/Entries?$skip=50"},
		{"?$skip=50",
			"https://proxy.example/bmc1/redfish/v1/Systems/1/LogServices/SEL/Entries?$skip=50"},
	}
	for _, tc := range tests {
		got, err := resolveNextLink(base, current, tc.link)
		if err != nil {
			t.Errorf("resolveNextLink(%q) error = %v", tc.link, err)
			continue
		}
		if got != tc.want {
			t.Errorf("resolveNextLink(%q) = %q, want %q", tc.link, got, tc.want)
		}
	}
}

func TestRedfishEvents_Watermark(t *testing.T) {
	now := time.Date(2024, 9, 14, 0, 0, 0, 0, time.UTC)
	entries := []redfishEntry{
		{ID: "1", Created: "2024-09-13T10:00:00Z", Message: "old", Severity: "OK"},
		{ID: "2", Created: "2024-09-13T11:00:00Z", Message: "new", Severity: "OK"},
		{ID: "3", Message: "undated", Severity: "OK"},
	}

	raws, newest := redfishEvents(entries, "h", now, time.Time{})
	if len(raws) != 3 {
		t.Fatalf("first pass: got %d events, want 3", len(raws))
	}
	if want := time.Date(2024, 9, 13, 11, 0, 0, 0, time.UTC); !newest.Equal(want) {
		t.Errorf("newest = %v, want %v", newest, want)
	}
	if raws[2].Timestamp != now.Format(time.RFC3339Nano) {
		t.Errorf("undated entry timestamp = %q, want collection time", raws[2].Timestamp)
	}

	raws, _ = redfishEvents(entries, "h", now, time.Date(2024, 9, 13, 10, 30, 0, 0, time.UTC))
	if len(raws) != 1 || raws[0].Message != "new" {
		t.Errorf("after watermark: got %+v, want only the newer dated entry", raws)
	}
}

func TestOriginName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{``, ""},
		{`"Power"`, "Power"},
		{`{"@odata.id": "/redfish/v1/Chassis/1/Power/"}`, "Power"},
		{`{}`, ""},
		{`42`, ""},
	}
	for _, tc := range tests {
		if got := originName(json.RawMessage(tc.raw)); got != tc.want {
			t.Errorf("originName(%s) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
