package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// minScrollKeepAlive is the contractual floor on scroll cursor keep-alive (§4.1).
const minScrollKeepAlive = 10 * time.Minute

type scrollState struct {
	index    string
	query    Query
	lastID   string
	pageSize int
	expires  time.Time
}

// cursorTable tracks open scroll cursors in memory. It is a Client-local
// concern, not a store engine feature, so cursors do not survive a restart
// of the process holding the Client.
type cursorTable struct {
	mu      sync.Mutex
	cursors map[string]scrollState
}

func newCursorTable() *cursorTable {
	return &cursorTable{cursors: make(map[string]scrollState)}
}

func (t *cursorTable) open(index string, q Query, lastID string, pageSize int, keepAlive time.Duration) string {
	if keepAlive < minScrollKeepAlive {
		keepAlive = minScrollKeepAlive
	}
	token := uuid.New().String()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictExpiredLocked()
	t.cursors[token] = scrollState{
		index:    index,
		query:    q,
		lastID:   lastID,
		pageSize: pageSize,
		expires:  time.Now().Add(keepAlive),
	}
	return token
}

func (t *cursorTable) advance(token, lastID string, keepAlive time.Duration) (scrollState, bool) {
	if keepAlive < minScrollKeepAlive {
		keepAlive = minScrollKeepAlive
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictExpiredLocked()
	st, ok := t.cursors[token]
	if !ok {
		return scrollState{}, false
	}
	st.lastID = lastID
	st.expires = time.Now().Add(keepAlive)
	t.cursors[token] = st
	return st, true
}

func (t *cursorTable) get(token string) (scrollState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictExpiredLocked()
	st, ok := t.cursors[token]
	return st, ok
}

func (t *cursorTable) clear(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cursors, token)
}

func (t *cursorTable) evictExpiredLocked() {
	now := time.Now()
	for token, st := range t.cursors {
		if now.After(st.expires) {
			delete(t.cursors, token)
		}
	}
}
