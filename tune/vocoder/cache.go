package vocoder

import (
	"container/list"
	"fmt"
	"reflect"
	"sync"

	"github.com/cwbudde/algo-tune/tune"
	"github.com/cwbudde/algo-tune/tune/voicing"
)

// DefaultCacheCapacity bounds the number of retained analyses.
const DefaultCacheCapacity = 4

// cacheKey identifies one analysis. Buffer identity is the backing array
// pointer plus length, not the content: the same in-memory take hits the
// cache, while two content-identical but distinct buffers occupy two
// entries. This is intentional; content hashing of audio would cost more
// than a duplicate analysis saves.
type cacheKey struct {
	data     uintptr
	length   int
	rate     int
	mode     voicing.Mode
	dilation int
}

type cacheEntry struct {
	key    cacheKey
	result *Result
}

// Cache memoizes Analyze results with strict least-recently-used eviction.
//
// It is safe for concurrent use. The expensive analysis runs outside the
// lock, so two callers racing on the same key may both compute; the second
// insert wins and no caller ever observes a partial entry.
type Cache struct {
	analyzer Analyzer
	floorHz  float64
	ceilHz   float64

	mu       sync.Mutex
	capacity int
	entries  map[cacheKey]*list.Element
	order    *list.List // front = most recently used
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCapacity sets the maximum number of retained analyses.
func WithCapacity(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithF0Range sets the f0 search band used for cached analyses.
func WithF0Range(floorHz, ceilHz float64) CacheOption {
	return func(c *Cache) {
		if floorHz > 0 && ceilHz > floorHz {
			c.floorHz = floorHz
			c.ceilHz = ceilHz
		}
	}
}

// NewCache creates a cache around an analysis engine.
func NewCache(analyzer Analyzer, opts ...CacheOption) (*Cache, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("%w: analyzer must not be nil", tune.ErrInvalidArgument)
	}

	c := &Cache{
		analyzer: analyzer,
		floorHz:  DefaultF0FloorHz,
		ceilHz:   DefaultF0CeilHz,
		capacity: DefaultCacheCapacity,
		entries:  make(map[cacheKey]*list.Element),
		order:    list.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// Capacity returns the maximum entry count.
func (c *Cache) Capacity() int { return c.capacity }

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// GetOrCompute returns the cached analysis for (buffer identity, sample
// rate, voicing mode, dilation) or runs the analysis and caches it. A hit
// promotes the entry to most recently used. Unrecognized modes surface
// tune.ErrInvalidArgument before any work happens.
func (c *Cache) GetOrCompute(audio []float64, sampleRate int, mode voicing.Mode, dilationFrames int) (*Result, error) {
	if _, err := voicing.ParseMode(string(mode)); err != nil {
		return nil, err
	}

	key := makeKey(audio, sampleRate, mode, dilationFrames)

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		res := el.Value.(*cacheEntry).result
		c.mu.Unlock()
		return res, nil
	}
	c.mu.Unlock()

	res, err := AnalyzeBand(c.analyzer, audio, sampleRate, mode, dilationFrames, c.floorHz, c.ceilHz)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		// Lost the race; keep the earlier complete entry.
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).result, nil
	}

	el := c.order.PushFront(&cacheEntry{key: key, result: res})
	c.entries[key] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}

	return res, nil
}

func makeKey(audio []float64, sampleRate int, mode voicing.Mode, dilationFrames int) cacheKey {
	var data uintptr
	if len(audio) > 0 {
		data = reflect.ValueOf(audio).Pointer()
	}
	return cacheKey{
		data:     data,
		length:   len(audio),
		rate:     sampleRate,
		mode:     mode,
		dilation: dilationFrames,
	}
}
