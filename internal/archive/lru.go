// Copyright 2025 Zarc Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import "container/list"

// blockCache is a small LRU keyed by file offset, used to avoid
// re-fetching and re-decompressing index blocks on every search. The
// root index in particular is touched by every lookup. Not safe for
// concurrent use; the Reader serialises access with its own mutex.
type blockCache struct {
	maxEntries int
	order      *list.List // front = most recently used
	entries    map[int64]*list.Element
}

type cacheItem struct {
	offset int64
	block  *indexBlock
}

func newBlockCache(maxEntries int) *blockCache {
	return &blockCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[int64]*list.Element),
	}
}

func (c *blockCache) get(offset int64) (*indexBlock, bool) {
	elem, ok := c.entries[offset]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheItem).block, true
}

func (c *blockCache) put(offset int64, block *indexBlock) {
	if elem, ok := c.entries[offset]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheItem).block = block
		return
	}
	c.entries[offset] = c.order.PushFront(&cacheItem{offset: offset, block: block})
	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheItem).offset)
	}
}
