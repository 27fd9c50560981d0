package sessions

import (
	"container/list"
	"sync"
)

// lockTable hands out one mutex per file path, bounded so long-running
// processes do not accumulate a mutex per session ever seen.
type lockTable struct {
	mu    sync.Mutex
	cap   int
	locks map[string]*list.Element
	order *list.List // front = most recently used
}

type lockEntry struct {
	key string
	mtx *sync.Mutex
}

func newLockTable(capacity int) *lockTable {
	if capacity <= 0 {
		capacity = 256
	}
	return &lockTable{
		cap:   capacity,
		locks: make(map[string]*list.Element),
		order: list.New(),
	}
}

// get returns the mutex for key, creating it and evicting the least recently
// used entry when the table is full.
func (t *lockTable) get(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.locks[key]; ok {
		t.order.MoveToFront(el)
		return el.Value.(*lockEntry).mtx
	}

	if t.order.Len() >= t.cap {
		oldest := t.order.Back()
		if oldest != nil {
			t.order.Remove(oldest)
			delete(t.locks, oldest.Value.(*lockEntry).key)
		}
	}

	entry := &lockEntry{key: key, mtx: &sync.Mutex{}}
	t.locks[key] = t.order.PushFront(entry)
	return entry.mtx
}
