package versioning

import "sync"

// chapterLocks hands out one mutex per chapter id. Entries are reference
// counted and removed once no caller holds or waits on them.
type chapterLocks struct {
	mu    sync.Mutex
	locks map[string]*chapterLock
}

type chapterLock struct {
	mu      sync.Mutex
	holders int
}

func newChapterLocks() *chapterLocks {
	return &chapterLocks{locks: make(map[string]*chapterLock)}
}

// lock blocks until the chapter is free and returns its release func.
func (c *chapterLocks) lock(chapterID string) func() {
	c.mu.Lock()

	entry, ok := c.locks[chapterID]
	if !ok {
		entry = &chapterLock{}
		c.locks[chapterID] = entry
	}

	entry.holders++
	c.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		c.mu.Lock()
		entry.holders--

		if entry.holders == 0 {
			delete(c.locks, chapterID)
		}

		c.mu.Unlock()
	}
}

func (c *chapterLocks) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.locks)
}
