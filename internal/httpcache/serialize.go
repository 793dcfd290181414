package httpcache

import (
	"encoding/json"
	"time"
)

// wireEntry is the JSON shape persisted to the optional L2 tier. It is
// distinct from entry so internal bookkeeping (accessCount, lastAccessed)
// doesn't leak into a format shared across processes.
type wireEntry struct {
	URL          string            `json:"url"`
	Body         []byte            `json:"body"`
	Compressed   bool              `json:"compressed"`
	Headers      map[string]string `json:"headers"`
	ETag         string            `json:"etag,omitempty"`
	LastModified string            `json:"last_modified,omitempty"`
	StoredAt     time.Time         `json:"stored_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
	Stale        bool              `json:"stale"`
}

func encodeEntry(e *entry) ([]byte, error) {
	return json.Marshal(wireEntry{
		URL:          e.url,
		Body:         e.body,
		Compressed:   e.compressed,
		Headers:      e.headers,
		ETag:         e.etag,
		LastModified: e.lastModified,
		StoredAt:     e.storedAt,
		ExpiresAt:    e.expiresAt,
		Stale:        e.stale,
	})
}

func decodeEntry(data []byte) (*entry, error) {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &entry{
		url:          w.URL,
		body:         w.Body,
		compressed:   w.Compressed,
		headers:      w.Headers,
		etag:         w.ETag,
		lastModified: w.LastModified,
		storedAt:     w.StoredAt,
		expiresAt:    w.ExpiresAt,
		stale:        w.Stale,
		lastAccessed: time.Now(),
	}, nil
}
