package cache

import (
	"container/list"
	"context"
	"sync"
)

const defaultMemoryEntries = 1024

// Memory is a process-local LRU used when no Redis URL is configured.
// It is only shared within one process.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
}

type memoryEntry struct {
	key   string
	value string
}

func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryEntries
	}

	return &Memory{
		entries:    make(map[string]*list.Element, maxEntries),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

func (c *Memory) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}

	entry, ok := elem.Value.(*memoryEntry)
	if !ok {
		return "", false, nil
	}

	c.order.MoveToFront(elem)

	return entry.value, true, nil
}

func (c *Memory) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		if entry, ok := elem.Value.(*memoryEntry); ok {
			entry.value = value
		}
		c.order.MoveToFront(elem)

		return nil
	}

	elem := c.order.PushFront(&memoryEntry{key: key, value: value})
	c.entries[key] = elem

	for len(c.entries) > c.maxEntries {
		c.removeOldest()
	}

	return nil
}

func (c *Memory) removeOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}

	c.order.Remove(elem)

	if entry, ok := elem.Value.(*memoryEntry); ok {
		delete(c.entries, entry.key)
	}
}
