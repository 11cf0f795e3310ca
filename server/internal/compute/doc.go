// Package compute turns the stream of validated events arriving for each
// source into a current risk score.
//
// Engine keeps one append-only window per source, bounded by a maximum event
// count and a maximum event age. Every Process call appends the new events,
// prunes the window and rescores all of it with risk.Pipeline.RunEvents, so a
// result never depends on how the events were split across exports.
//
// Engine also tracks per-source uptime (share of the last 20 updates without
// a collector failure event) and the latest certificate status.
// Process accepts an injectable time.Time so tests are deterministic.
package compute
