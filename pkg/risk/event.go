package risk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Level is the severity of a log event. The vocabulary is closed; use
// ParseLevel to convert external text.
type Level int

// Severity levels in ascending order of urgency.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelCritical:
		return "critical"
	default:
		return "level(" + strconv.Itoa(int(l)) + ")"
	}
}

// MarshalText encodes the level as its lowercase name.
func (l Level) MarshalText() ([]byte, error) {
	if l < LevelDebug || l > LevelCritical {
		return nil, fmt.Errorf("risk: unknown level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText accepts anything ParseLevel accepts.
func (l *Level) UnmarshalText(b []byte) error {
	lv, ok := ParseLevel(string(b))
	if !ok {
		return fmt.Errorf("risk: unknown level %q", string(b))
	}
	*l = lv
	return nil
}

var fold = cases.Fold()

// ParseLevel maps case-insensitive text onto the severity vocabulary.
// Common aliases emitted by syslog, BMC event logs and logging libraries are
// accepted (warn, err, fatal, crit, ...). The second result is false for
// anything else.
func ParseLevel(s string) (Level, bool) {
	switch fold.String(strings.TrimSpace(s)) {
	case "debug", "dbg", "trace":
		return LevelDebug, true
	case "info", "inf", "informational", "notice":
		return LevelInfo, true
	case "warning", "warn":
		return LevelWarning, true
	case "error", "err":
		return LevelError, true
	case "critical", "crit", "fatal", "alert", "emerg", "emergency":
		return LevelCritical, true
	default:
		return 0, false
	}
}

// LogEvent is one validated log line. It is a value type: copy it freely,
// never mutate it after Parse.
type LogEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host"`
	Service   string    `json:"service"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
}

// RawEvent is a caller-supplied record before validation.
//
// Timestamp holds the textual form of the JSON value: a string as-is, or the
// digits of a number (Unix seconds or milliseconds). Severity is the
// collectors' name for Level and is used only when Level is empty.
// Unknown JSON fields are ignored.
type RawEvent struct {
	Timestamp string `json:"timestamp"`
	Host      string `json:"host"`
	Service   string `json:"service"`
	Level     string `json:"level"`
	Severity  string `json:"severity,omitempty"`
	Message   string `json:"message"`
}

// UnmarshalJSON accepts the timestamp as either a JSON string or number.
func (r *RawEvent) UnmarshalJSON(data []byte) error {
	var aux struct {
		Timestamp json.RawMessage `json:"timestamp"`
		Host      string          `json:"host"`
		Service   string          `json:"service"`
		Level     string          `json:"level"`
		Severity  string          `json:"severity"`
		Message   string          `json:"message"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var ts string
	switch raw := bytes.TrimSpace(aux.Timestamp); {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &ts); err != nil {
			return err
		}
	default:
		ts = string(raw)
	}

	*r = RawEvent{
		Timestamp: ts,
		Host:      aux.Host,
		Service:   aux.Service,
		Level:     aux.Level,
		Severity:  aux.Severity,
		Message:   aux.Message,
	}
	return nil
}

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
}

// epochMillisCutoff separates Unix seconds from Unix milliseconds. Second
// values stay below it until the year 5138.
const epochMillisCutoff = 100_000_000_000

// ParseTimestamp reads s as RFC 3339, a zone-less ISO 8601 / SQL datetime
// (assumed UTC), or an integer Unix time in seconds or milliseconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return time.Time{}, fmt.Errorf("negative epoch %d", n)
		}
		if n >= epochMillisCutoff {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Parse validates raw and returns the corresponding LogEvent.
//
// It fails with a *ValidationError when the timestamp does not parse, host
// or service is blank, or the level is outside the vocabulary. Host, service
// and message are kept verbatim apart from trimming surrounding whitespace
// from host and service.
func Parse(raw RawEvent) (LogEvent, error) {
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return LogEvent{}, invalid("timestamp", raw.Timestamp, err.Error())
	}

	host := strings.TrimSpace(raw.Host)
	if host == "" {
		return LogEvent{}, invalid("host", raw.Host, "must not be empty")
	}
	service := strings.TrimSpace(raw.Service)
	if service == "" {
		return LogEvent{}, invalid("service", raw.Service, "must not be empty")
	}

	levelText := raw.Level
	if strings.TrimSpace(levelText) == "" {
		levelText = raw.Severity
	}
	level, ok := ParseLevel(levelText)
	if !ok {
		return LogEvent{}, invalid("level", levelText,
			"must be one of debug, info, warning, error, critical")
	}

	return LogEvent{
		Timestamp: ts,
		Host:      host,
		Service:   service,
		Level:     level,
		Message:   raw.Message,
	}, nil
}
