package cache

import (
	"fmt"
	"testing"
	"time"

	"docchat-be/internal/dto"
	"docchat-be/pkg/rag/stream"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeKeyDeterministic(t *testing.T) {
	docA := uuid.New()
	docB := uuid.New()

	k1 := ComputeKey("What is pricing?", []uuid.UUID{docA, docB}, nil)
	k2 := ComputeKey("What is pricing?", []uuid.UUID{docB, docA}, nil)
	assert.Equal(t, k1, k2, "document order must not change the key")

	k3 := ComputeKey("  what   IS pricing?  ", []uuid.UUID{docA, docB}, nil)
	assert.Equal(t, k1, k3, "whitespace and case must normalize away")

	focus := &dto.FocusContextDTO{DocumentId: docA, StartChar: 10, EndChar: 20}
	k4 := ComputeKey("What is pricing?", []uuid.UUID{docA, docB}, focus)
	assert.NotEqual(t, k1, k4, "focus range must change the key")
}

func TestCacheGetSet(t *testing.T) {
	c := NewResponseCache(10, time.Hour)

	assert.Nil(t, c.Get("missing"))

	c.Set("k1", "answer", nil, 42)
	entry := c.Get("k1")
	require.NotNil(t, entry)
	assert.Equal(t, "answer", entry.Response)
	assert.Equal(t, 42, entry.TokenCount)
	assert.Equal(t, 1, entry.HitCount)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestCacheCapacityEviction(t *testing.T) {
	c := NewResponseCache(3, time.Hour)

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v", nil, 1)
		assert.LessOrEqual(t, c.Stats().Size, 3)
	}

	// Oldest insertions evicted first.
	assert.Nil(t, c.Get("k0"))
	assert.Nil(t, c.Get("k1"))
	assert.NotNil(t, c.Get("k2"))
	assert.NotNil(t, c.Get("k4"))
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewResponseCache(10, time.Minute)
	current := time.Now()
	c.now = func() time.Time { return current }

	c.Set("k1", "v", nil, 1)
	require.NotNil(t, c.Get("k1"))

	current = current.Add(2 * time.Minute)
	assert.Nil(t, c.Get("k1"), "expired entry must read as a miss")
	assert.Equal(t, 0, c.Stats().Size, "expired entry must be deleted")
}

func TestInvalidateDocument(t *testing.T) {
	c := NewResponseCache(10, time.Hour)
	docA := uuid.New()
	docB := uuid.New()

	c.Set("a", "v", []stream.SourceData{{DocumentId: docA.String()}}, 1)
	c.Set("b", "v", []stream.SourceData{{DocumentId: docB.String()}}, 1)
	c.Set("both", "v", []stream.SourceData{
		{DocumentId: docA.String()},
		{DocumentId: docB.String()},
	}, 1)

	removed := c.InvalidateDocument(docA)
	assert.Equal(t, 2, removed)
	assert.Nil(t, c.Get("a"))
	assert.Nil(t, c.Get("both"))
	assert.NotNil(t, c.Get("b"))
}

func TestClearKeepsCounters(t *testing.T) {
	c := NewResponseCache(10, time.Hour)
	c.Set("k", "v", nil, 1)
	c.Get("k")
	c.Clear()

	stats := c.Stats()
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, 1, stats.Hits)
}
