// Package imagecache caches card images across a memory LRU tier and the
// persistent storage layer, and renders them into view slots with
// well-defined loading and failure fallbacks.
package imagecache

import (
	"container/list"
	"image"
)

// lruEntry pairs a content key with its decoded bitmap.
type lruEntry struct {
	img image.Image
	key string
}

// imageLRU is a strict least-recently-used cache of decoded bitmaps,
// capped at max entries. Not safe for concurrent use; the cache
// serializes access.
type imageLRU struct {
	index map[string]*list.Element
	order *list.List
	max   int
}

func newImageLRU(max int) *imageLRU {
	if max <= 0 {
		max = 100
	}
	return &imageLRU{
		index: make(map[string]*list.Element),
		order: list.New(),
		max:   max,
	}
}

// get returns the cached bitmap and promotes it to most-recent.
func (l *imageLRU) get(key string) (image.Image, bool) {
	el, ok := l.index[key]
	if !ok {
		return nil, false
	}
	l.order.MoveToFront(el)
	return el.Value.(*lruEntry).img, true
}

// put inserts or refreshes an entry and evicts the least-recently-used
// entry on overflow. It returns the evicted key, if any.
func (l *imageLRU) put(key string, img image.Image) (evicted string, didEvict bool) {
	if el, ok := l.index[key]; ok {
		el.Value.(*lruEntry).img = img
		l.order.MoveToFront(el)
		return "", false
	}

	el := l.order.PushFront(&lruEntry{key: key, img: img})
	l.index[key] = el

	if l.order.Len() <= l.max {
		return "", false
	}
	oldest := l.order.Back()
	entry := oldest.Value.(*lruEntry)
	l.order.Remove(oldest)
	delete(l.index, entry.key)
	return entry.key, true
}

func (l *imageLRU) len() int {
	return l.order.Len()
}

func (l *imageLRU) clear() {
	l.index = make(map[string]*list.Element)
	l.order.Init()
}
