package risk

import (
	"fmt"
	"strconv"
	"strings"
)

// Label is the discrete classification of a score.
type Label int

// Labels. The zero value is LabelNormal.
const (
	LabelNormal Label = iota
	LabelDegraded
)

// DegradedThreshold is the score above which a batch is degraded.
// The comparison is strict: a score of exactly 0.5 is normal.
const DegradedThreshold = 0.5

// Fixed notes attached to each label.
const (
	NoteNormal   = "No anomalies detected in sample."
	NoteDegraded = "Elevated risk based on errors."
)

// dominantShare is the service concentration at which a degraded note names
// the service responsible.
const dominantShare = 0.5

func (l Label) String() string {
	switch l {
	case LabelNormal:
		return "normal"
	case LabelDegraded:
		return "degraded"
	default:
		return "label(" + strconv.Itoa(int(l)) + ")"
	}
}

// MarshalText encodes the label as its name.
func (l Label) MarshalText() ([]byte, error) {
	switch l {
	case LabelNormal, LabelDegraded:
		return []byte(l.String()), nil
	default:
		return nil, fmt.Errorf("risk: unknown label %d", int(l))
	}
}

// UnmarshalText accepts "normal" or "degraded", in any case.
func (l *Label) UnmarshalText(b []byte) error {
	lb, ok := ParseLabel(string(b))
	if !ok {
		return fmt.Errorf("risk: unknown label %q", string(b))
	}
	*l = lb
	return nil
}

// ParseLabel maps text to a Label.
func ParseLabel(s string) (Label, bool) {
	switch fold.String(strings.TrimSpace(s)) {
	case "normal":
		return LabelNormal, true
	case "degraded":
		return LabelDegraded, true
	default:
		return 0, false
	}
}

// Classify maps a score to its label and the label's fixed note.
func Classify(score float64) (Label, string) {
	if score > DegradedThreshold {
		return LabelDegraded, NoteDegraded
	}
	return LabelNormal, NoteNormal
}

// Explain builds the note for a classified batch: the label's fixed note,
// followed by the counts that produced the score and, for degraded batches
// dominated by one service, that service. The output depends only on its
// inputs.
func Explain(label Label, fv FeatureVector) string {
	note := NoteNormal
	if label == LabelDegraded {
		note = NoteDegraded
	}
	if fv.N == 0 {
		return note
	}

	var b strings.Builder
	b.WriteString(note)
	fmt.Fprintf(&b, " %d %s: %d error, %d critical, %d warning.",
		fv.N, plural(fv.N, "event", "events"),
		fv.ErrorCount, fv.CriticalCount, fv.WarningCount)

	if label == LabelDegraded && fv.N > 1 && fv.ServiceConcentration >= dominantShare {
		fmt.Fprintf(&b, " %.0f%% from service %q.", fv.ServiceConcentration*100, fv.TopService)
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
