package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"docchat-be/internal/dto"
	"docchat-be/pkg/rag/stream"

	"github.com/google/uuid"
)

// Entry is one memoized answer with its source snapshot.
type Entry struct {
	Key        string
	Response   string
	Sources    []stream.SourceData
	TokenCount int
	CreatedAt  time.Time
	HitCount   int
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
	Size   int `json:"size"`
}

// ResponseCache memoizes (query, document set, focus) -> answer. Size is
// bounded with oldest-insertion eviction; every read checks the TTL.
// Safe for concurrent use.
type ResponseCache struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	order    []string // insertion order, oldest first
	maxSize  int
	ttl      time.Duration
	hits     int
	misses   int
	now      func() time.Time
}

func NewResponseCache(maxSize int, ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		entries: make(map[string]*Entry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// ComputeKey derives a stable fingerprint. Document-id order never
// affects the key, and an absent focus encodes as an empty segment.
func ComputeKey(query string, documentIds []uuid.UUID, focus *dto.FocusContextDTO) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))

	ids := make([]string, len(documentIds))
	for i, id := range documentIds {
		ids[i] = id.String()
	}
	sort.Strings(ids)

	focusSig := ""
	if focus != nil {
		focusSig = fmt.Sprintf("%s:%d:%d", focus.DocumentId, focus.StartChar, focus.EndChar)
	}

	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(ids, ",")))
	h.Write([]byte{0})
	h.Write([]byte(focusSig))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the entry for key, or nil on miss. Expired entries are
// removed and counted as misses.
func (c *ResponseCache) Get(key string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil
	}
	if c.now().Sub(entry.CreatedAt) > c.ttl {
		c.removeLocked(key)
		c.misses++
		return nil
	}

	entry.HitCount++
	c.hits++
	return entry
}

// Set stores an answer, evicting the oldest insertion when full.
func (c *ResponseCache) Set(key, response string, sources []stream.SourceData, tokenCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.removeLocked(key)
	}

	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		c.removeLocked(c.order[0])
	}

	c.entries[key] = &Entry{
		Key:        key,
		Response:   response,
		Sources:    sources,
		TokenCount: tokenCount,
		CreatedAt:  c.now(),
	}
	c.order = append(c.order, key)
}

// InvalidateDocument drops every entry whose source snapshot references
// the document. Cached answers go stale when their document changes.
func (c *ResponseCache) InvalidateDocument(documentId uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	docId := documentId.String()
	removed := 0
	for key, entry := range c.entries {
		for _, src := range entry.Sources {
			if src.DocumentId == docId {
				c.removeLocked(key)
				removed++
				break
			}
		}
	}
	return removed
}

// Clear empties the cache without resetting hit/miss counters.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
	c.order = nil
}

func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
}

func (c *ResponseCache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
