// Package risk turns a batch of structured log events into a single risk
// prediction for a host fleet.
//
// The pipeline is a pure, single-pass computation:
//
//	[]RawEvent --Parse--> []LogEvent --Extract--> FeatureVector
//	           --Model.Score--> score in [0,1] --Classify--> Label + notes
//
// Run(raws) is the only entry point most callers need. Any invalid record
// rejects the whole batch with a *ValidationError that names the offending
// index and field; nothing is partially scored.
//
// The baseline Model is Heuristic:
//
//	score = min(0.2*n + 0.15*(error_count + critical_count), 1.0)
//
// rounded to two decimals. A batch is "degraded" when score > 0.5.
// Swap the model with New(WithModel(m)); the pipeline clamps and rounds
// whatever the model returns, so the [0,1] contract always holds.
//
// Nothing in this package keeps state between calls. All exported functions
// are safe for concurrent use.
package risk
