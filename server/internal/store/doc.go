// Package store holds the latest scored result per source in memory, with
// TTL eviction. Evicted sources are reported through OnEvict so their scoring
// windows can be released too.
package store
