// Package consolidate owns the ConsolidatedIncident lifecycle: grouping
// surviving candidates by facility and time window, merging their sources
// deterministically, and computing the 1-4 evidence score. It defines the
// Store interface; memstore and pgstore provide the implementations.
package consolidate
