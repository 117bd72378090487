// Package pipeline is the business boundary for batch ingestion. It composes
// the stages (normalize, filter, fake-detect, verify, consolidate) over a
// batch of raw records, partitions surviving candidates by grouping key so
// same-facility candidates are serialized while different facilities run
// concurrently, and reports a per-record outcome.
package pipeline
