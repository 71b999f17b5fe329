package screenshot

import (
	"container/list"
	"sync"
)

// BufferCache is the re-encoding pipeline's own LRU cache keyed by
// (inputHash, operations), default 50 MiB (§4.7). No suitable
// third-party LRU package appears anywhere in the retrieved stack, so
// this is a small hand-rolled container/list LRU, the same shape the
// teacher uses for its in-process device/app caches (pkg/cache/service.go).
type BufferCache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	ll       *list.List
	items    map[string]*list.Element
}

type bufferEntry struct {
	key  string
	data []byte
}

// NewBufferCache constructs a BufferCache capped at maxBytes (a
// non-positive value defaults to 50 MiB).
func NewBufferCache(maxBytes int64) *BufferCache {
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &BufferCache{maxBytes: maxBytes, ll: list.New(), items: make(map[string]*list.Element)}
}

// Get returns the cached buffer for key, promoting it to most-recently-used.
func (c *BufferCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*bufferEntry).data, true
}

// Put stores data under key, evicting least-recently-used entries until
// the cache is back under its byte cap.
func (c *BufferCache) Put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.curBytes -= int64(len(el.Value.(*bufferEntry).data))
		el.Value = &bufferEntry{key: key, data: data}
		c.curBytes += int64(len(data))
		c.ll.MoveToFront(el)
	} else {
		el := c.ll.PushFront(&bufferEntry{key: key, data: data})
		c.items[key] = el
		c.curBytes += int64(len(data))
	}
	for c.curBytes > c.maxBytes {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.evict(back)
	}
}

func (c *BufferCache) evict(el *list.Element) {
	entry := el.Value.(*bufferEntry)
	c.curBytes -= int64(len(entry.data))
	delete(c.items, entry.key)
	c.ll.Remove(el)
}

// Len returns the number of entries currently cached.
func (c *BufferCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
