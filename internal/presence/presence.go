package presence

import (
	"sort"
	"sync"
)

// Conn is a live connection handle as far as presence is concerned.
type Conn interface {
	ID() string
}

// Registry maps online users to their single live connection. A new
// announce for the same user replaces the previous handle.
type Registry interface {
	Announce(userID string, conn Conn) (previous Conn)
	Remove(conn Conn) (userID string, removed bool)
	Lookup(userID string) (Conn, bool)
	Online() []string
}

// Local is an in-process Registry.
type Local struct {
	mu     sync.RWMutex
	byUser map[string]Conn
	byConn map[string]string
	onSize func(int)
}

// NewLocal creates an empty registry. onSize, when non-nil, is called with
// the number of online users after every change.
func NewLocal(onSize func(int)) *Local {
	return &Local{
		byUser: make(map[string]Conn),
		byConn: make(map[string]string),
		onSize: onSize,
	}
}

func (l *Local) Announce(userID string, conn Conn) Conn {
	l.mu.Lock()
	defer l.mu.Unlock()

	previous := l.byUser[userID]
	if previous != nil {
		delete(l.byConn, previous.ID())
	}
	// a connection announcing a different identity drops its old entry
	if oldUser, ok := l.byConn[conn.ID()]; ok && oldUser != userID {
		delete(l.byUser, oldUser)
	}
	l.byUser[userID] = conn
	l.byConn[conn.ID()] = userID
	l.reportLocked()
	if previous != nil && previous.ID() == conn.ID() {
		return nil
	}
	return previous
}

// Remove drops the entry held by conn. Unknown handles are a no-op.
func (l *Local) Remove(conn Conn) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	userID, ok := l.byConn[conn.ID()]
	if !ok {
		return "", false
	}
	delete(l.byConn, conn.ID())
	if current, exists := l.byUser[userID]; exists && current.ID() == conn.ID() {
		delete(l.byUser, userID)
	}
	l.reportLocked()
	return userID, true
}

func (l *Local) Lookup(userID string) (Conn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	conn, ok := l.byUser[userID]
	return conn, ok
}

// Online returns the online user ids in ascending order.
func (l *Local) Online() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.byUser))
	for userID := range l.byUser {
		ids = append(ids, userID)
	}
	sort.Strings(ids)
	return ids
}

func (l *Local) reportLocked() {
	if l.onSize != nil {
		l.onSize(len(l.byUser))
	}
}
