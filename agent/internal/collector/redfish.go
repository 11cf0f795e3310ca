package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/tems/tems/agent/internal/config"
	"github.com/tems/tems/pkg/risk"
)

// maxRedfishPages bounds how many @odata.nextLink pages one cycle follows.
const maxRedfishPages = 20

// redfishServiceDefault is the service for entries without a sensor type.
const redfishServiceDefault = "log"

type redfishCollector struct {
	src    config.Source
	client *http.Client

	// since is the newest entry timestamp already emitted.
	since time.Time

	// When a cycle stops at maxRedfishPages, resume holds the URL of the
	// first unread page and pending the newest timestamp emitted so far. The
	// next cycle continues from resume, and since only advances once the
	// whole collection has been read, so no page is skipped whatever order
	// the BMC lists entries in.
	resume  string
	pending time.Time
}

// redfishCollection is the subset of a Redfish LogEntryCollection we read.
type redfishCollection struct {
	Members  []redfishEntry `json:"Members"`
	NextLink string         `json:"Members@odata.nextLink"`
}

// redfishEntry is the subset of a Redfish LogEntry we read. Vendors differ in
// which of the alternative fields they populate.
type redfishEntry struct {
	ID                string          `json:"Id"`
	Created           string          `json:"Created"`
	DateTime          string          `json:"DateTime"`
	Message           string          `json:"Message"`
	OemRecordFormat   string          `json:"OemRecordFormat"`
	Severity          string          `json:"Severity"`
	EntryType         string          `json:"EntryType"`
	SensorType        string          `json:"SensorType"`
	OriginOfCondition json.RawMessage `json:"OriginOfCondition"`
}

// Collect fetches the BMC's log entry collection and returns the entries
// created after the newest one seen by a previous cycle. Large collections
// are read across several cycles, maxRedfishPages at a time.
func (c *redfishCollector) Collect(ctx context.Context) (*Batch, error) {
	now := time.Now().UTC()
	b := newBatch(c.src, now)

	base := strings.TrimRight(c.src.Endpoint, "/")
	next := c.resume
	if next == "" {
		next = base + "/redfish/v1" + c.src.RedfishLogPath()
	}

	var entries []redfishEntry
	for page := 0; next != "" && page < maxRedfishPages; page++ {
		var coll redfishCollection
		if err := getJSON(ctx, c.client, next, &coll); err != nil {
			err = fmt.Errorf("redfish collect %q: %w", c.src.ID, err)
			slog.Warn("collector: redfish fetch failed", "source", c.src.ID, "err", err)
			b.fail(err)
			return b, nil
		}
		entries = append(entries, coll.Members...)

		link, err := resolveNextLink(base, next, coll.NextLink)
		if err != nil {
			err = fmt.Errorf("redfish collect %q: %w", c.src.ID, err)
			slog.Warn("collector: redfish bad next link", "source", c.src.ID, "err", err)
			b.fail(err)
			return b, nil
		}
		next = link
	}

	raws, newest := redfishEvents(entries, b.Host, now, c.since)
	b.add(raws...)
	if newest.After(c.pending) {
		c.pending = newest
	}

	c.resume = next
	if next != "" {
		slog.Debug("collector: redfish paging continues next cycle",
			"source", c.src.ID, "pages", maxRedfishPages)
		return b, nil
	}
	if c.pending.After(c.since) {
		c.since = c.pending
	}
	c.pending = time.Time{}
	return b, nil
}

// resolveNextLink turns a Members@odata.nextLink into a URL. Absolute URLs
// and links relative to the current page resolve against current; links
// rooted at "/" are appended to base so an endpoint path prefix survives.
func resolveNextLink(base, current, link string) (string, error) {
	if link == "" {
		return "", nil
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("next link %q: %w", link, err)
	}
	if !ref.IsAbs() && ref.Host == "" && strings.HasPrefix(link, "/") {
		return base + link, nil
	}
	cur, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("page url %q: %w", current, err)
	}
	return cur.ResolveReference(ref).String(), nil
}

// redfishEvents maps Redfish log entries to raw events for host. Entries whose
// timestamp is not after since are dropped. Entries without a usable
// timestamp are stamped with now and only emitted while since is zero, since
// there is no way to tell them apart across cycles. It returns the newest
// entry timestamp.
func redfishEvents(entries []redfishEntry, host string, now, since time.Time) ([]risk.RawEvent, time.Time) {
	var (
		out    []risk.RawEvent
		newest time.Time
	)
	for _, e := range entries {
		ts, err := risk.ParseTimestamp(firstNonEmpty(e.Created, e.DateTime))
		switch {
		case err != nil && !since.IsZero():
			continue
		case err != nil:
			ts = now
		case !ts.After(since):
			continue
		case ts.After(newest):
			newest = ts
		}

		msg := firstNonEmpty(e.Message, e.OemRecordFormat)
		if msg == "" {
			msg = "entry " + e.ID
		}
		out = append(out, risk.RawEvent{
			Timestamp: ts.Format(time.RFC3339Nano),
			Host:      host,
			Service:   firstNonEmpty(e.SensorType, originName(e.OriginOfCondition), redfishServiceDefault),
			Level:     bmcLevel(firstNonEmpty(e.Severity, e.EntryType)),
			Message:   msg,
		})
	}
	return out, newest
}

// originName reduces OriginOfCondition, either a string or an
// {"@odata.id": "..."} link, to its last path segment.
func originName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var link struct {
			ID string `json:"@odata.id"`
		}
		if err := json.Unmarshal(raw, &link); err != nil {
			return ""
		}
		s = link.ID
	}
	s = strings.TrimRight(strings.TrimSpace(s), "/")
	if s == "" {
		return ""
	}
	return path.Base(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
