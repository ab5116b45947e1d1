// Package crawler implements the topic search engine: site descriptors, the
// static/rendered page fetcher, the selector extractor, the per (topic, site)
// search orchestrator, and the runner that merges results into record sinks.
package crawler
