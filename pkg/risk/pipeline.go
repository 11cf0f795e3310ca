package risk

import "errors"

// Prediction is the result of scoring one batch.
type Prediction struct {
	// Score is the risk in [0,1], rounded to two decimals.
	Score float64 `json:"score"`

	// Label is LabelDegraded when Score > DegradedThreshold.
	Label Label `json:"label"`

	// Notes explains the label. Always set.
	Notes string `json:"notes,omitempty"`

	// Features is the vector the score was computed from. It is not part of
	// the prediction's wire form.
	Features FeatureVector `json:"-"`
}

// Degraded reports whether the prediction is labelled degraded.
func (p Prediction) Degraded() bool {
	return p.Label == LabelDegraded
}

// Pipeline composes parsing, extraction, scoring and classification.
// A Pipeline holds no mutable state and is safe for concurrent use.
type Pipeline struct {
	model Model
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithModel replaces the baseline Heuristic. A nil model is ignored.
func WithModel(m Model) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.model = m
		}
	}
}

// New returns a Pipeline using Heuristic unless overridden.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{model: Heuristic{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run validates every record, then scores the batch.
//
// The first invalid record aborts the call with a *ValidationError whose
// Index is the record's position; no Prediction is produced for a batch that
// contains any invalid record.
func (p *Pipeline) Run(raws []RawEvent) (Prediction, error) {
	events, err := ParseBatch(raws)
	if err != nil {
		return Prediction{}, err
	}
	return p.RunEvents(events), nil
}

// RunEvents scores events that have already been validated.
func (p *Pipeline) RunEvents(events []LogEvent) Prediction {
	fv := Extract(events)
	score := normalize(p.model.Score(fv))
	label, _ := Classify(score)
	return Prediction{
		Score:    score,
		Label:    label,
		Notes:    Explain(label, fv),
		Features: fv,
	}
}

// ParseBatch validates raws in order and returns the events. On failure the
// returned *ValidationError carries the index of the offending record.
func ParseBatch(raws []RawEvent) ([]LogEvent, error) {
	events := make([]LogEvent, 0, len(raws))
	for i, raw := range raws {
		ev, err := Parse(raw)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Index = i
			}
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

var defaultPipeline = New()

// Run scores raws with the baseline pipeline.
func Run(raws []RawEvent) (Prediction, error) {
	return defaultPipeline.Run(raws)
}

// RunEvents scores validated events with the baseline pipeline.
func RunEvents(events []LogEvent) Prediction {
	return defaultPipeline.RunEvents(events)
}
