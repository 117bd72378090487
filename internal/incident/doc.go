// Package incident defines Skywatch's domain model: the ephemeral Candidate
// produced per scrape, the durable Consolidated aggregate, source references
// with trust weights, and the normalizer that turns raw scraped records into
// canonical candidates.
package incident
