package collector

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tems/tems/agent/internal/config"
	"github.com/tems/tems/pkg/risk"
)

// Services stamped on ipmitool-derived events.
const (
	ServiceIPMI   = "ipmi"
	ServiceSensor = "sensor"
)

// selTimeLayout is the date and time format of `ipmitool sel elist`.
const selTimeLayout = "01/02/2006 15:04:05"

// runFunc executes name with args and extra environment, returning stdout.
type runFunc func(ctx context.Context, name string, args, env []string) ([]byte, error)

type ipmiCollector struct {
	src config.Source
	run runFunc

	// lastRecord is the highest SEL record ID already emitted.
	lastRecord uint64
}

func runCommand(ctx context.Context, name string, args, env []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCollectTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// command returns the ipmitool invocation. A remote endpoint is reached over
// lanplus; the password travels in IPMI_PASSWORD (-E), never on the command line.
func (c *ipmiCollector) command() (string, []string, []string) {
	name, args := c.src.IPMICommand()
	if c.src.Endpoint == "" {
		return name, args, nil
	}
	remote := []string{"-I", "lanplus", "-H", c.src.Endpoint}
	var env []string
	if c.src.Auth.Username != "" {
		remote = append(remote, "-U", c.src.Auth.Username)
	}
	if pw := c.src.Auth.Password(); pw != "" {
		remote = append(remote, "-E")
		env = append(env, "IPMI_PASSWORD="+pw)
	}
	return name, append(remote, args...), env
}

// sensorMode reports whether the configured invocation lists sensors rather
// than the SEL.
func (c *ipmiCollector) sensorMode() bool {
	_, args := c.src.IPMICommand()
	return slices.Contains(args, "sensor") && !slices.Contains(args, "sel")
}

// Collect runs ipmitool and turns its output into events. In SEL mode only
// records newer than the last one emitted are returned; in sensor mode only
// readings outside the ok band are.
func (c *ipmiCollector) Collect(ctx context.Context) (*Batch, error) {
	now := time.Now().UTC()
	b := newBatch(c.src, now)

	name, args, env := c.command()
	out, err := c.run(ctx, name, args, env)
	if err != nil {
		err = fmt.Errorf("ipmi collect %q: %w", c.src.ID, err)
		slog.Warn("collector: ipmitool failed", "source", c.src.ID, "err", err)
		b.fail(err)
		return b, nil
	}

	if c.sensorMode() {
		for _, r := range ParseSensor(string(out), b.Host, now) {
			if r.Level != risk.LevelInfo.String() {
				b.add(r)
			}
		}
		return b, nil
	}

	entries := ParseSEL(string(out), b.Host, now)
	var maxRecord uint64
	for _, e := range entries {
		maxRecord = max(maxRecord, e.Record)
	}
	if maxRecord < c.lastRecord {
		// SEL was cleared; record IDs restart.
		slog.Info("collector: sel cleared, resetting record watermark",
			"source", c.src.ID, "last_record", c.lastRecord)
		c.lastRecord = 0
	}
	for _, e := range entries {
		if e.Record != 0 && e.Record <= c.lastRecord {
			continue
		}
		b.add(e.Event)
	}
	c.lastRecord = max(c.lastRecord, maxRecord)
	return b, nil
}

// SELEntry is one parsed `ipmitool sel elist` line.
type SELEntry struct {
	// Record is the SEL record ID, or 0 when it is not hexadecimal.
	Record uint64
	Event  risk.RawEvent
}

// ParseSEL parses `ipmitool sel elist` output of the form
//
//	1 | 09/13/2024 | 12:34:56 | Critical | PSU1 input lost
//
// Lines with fewer than five fields are skipped. A date that does not parse
// is replaced by now.
func ParseSEL(output, host string, now time.Time) []SELEntry {
	var out []SELEntry
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		parts := splitFields(sc.Text())
		if len(parts) < 5 {
			continue
		}
		ts, err := time.Parse(selTimeLayout, parts[1]+" "+parts[2])
		if err != nil {
			ts = now
		}
		record, _ := strconv.ParseUint(parts[0], 16, 64)
		out = append(out, SELEntry{
			Record: record,
			Event: risk.RawEvent{
				Timestamp: ts.Format(time.RFC3339Nano),
				Host:      host,
				Service:   ServiceIPMI,
				Level:     bmcLevel(parts[3]),
				Message:   strings.Join(parts[4:], " | "),
			},
		})
	}
	return out
}

// sensorLevels maps ipmitool sensor status columns to levels. "na" readings
// are absent sensors and are skipped.
var sensorLevels = map[string]risk.Level{
	"ok": risk.LevelInfo,
	"nc": risk.LevelWarning,
	"cr": risk.LevelError,
	"nr": risk.LevelCritical,
}

// ParseSensor parses `ipmitool sensor` output (name | reading | unit | status
// | thresholds...) into events stamped now.
func ParseSensor(output, host string, now time.Time) []risk.RawEvent {
	var out []risk.RawEvent
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		parts := splitFields(sc.Text())
		if len(parts) < 4 || parts[0] == "" {
			continue
		}
		lv, ok := sensorLevels[strings.ToLower(parts[3])]
		if !ok {
			continue
		}
		msg := parts[0] + ": " + parts[1]
		if parts[2] != "" {
			msg += " " + parts[2]
		}
		out = append(out, risk.RawEvent{
			Timestamp: now.Format(time.RFC3339Nano),
			Host:      host,
			Service:   ServiceSensor,
			Level:     lv.String(),
			Message:   msg + " (" + parts[3] + ")",
		})
	}
	return out
}

func splitFields(line string) []string {
	parts := strings.Split(line, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
