package service

import (
	"sync"

	"github.com/google/uuid"
)

// idLocks hands out one mutex per record id
type idLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newIDLocks() *idLocks {
	return &idLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// lock blocks until id is free and returns the matching unlock
func (l *idLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
