package store

import (
	"sync"
)

// Hub tracks open conns per database file so an upgrading conn can ask its
// siblings to step aside. One Hub is shared by every Connector of a process.
type Hub struct {
	mu    sync.Mutex
	conns map[string]map[string]*Conn
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[string]*Conn)}
}

func (h *Hub) register(c *Conn) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	byID, ok := h.conns[c.path]
	if !ok {
		byID = make(map[string]*Conn)
		h.conns[c.path] = byID
	}
	byID[c.id] = c
}

func (h *Hub) unregister(c *Conn) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if byID, ok := h.conns[c.path]; ok {
		delete(byID, c.id)
		if len(byID) == 0 {
			delete(h.conns, c.path)
		}
	}
}

// broadcastVersionChange closes every conn on path except from. It returns
// how many siblings were notified.
func (h *Hub) broadcastVersionChange(path, from string, version int) int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	siblings := make([]*Conn, 0, len(h.conns[path]))
	for id, c := range h.conns[path] {
		if id != from {
			siblings = append(siblings, c)
		}
	}
	h.mu.Unlock()

	for _, c := range siblings {
		c.versionChange(version)
	}
	return len(siblings)
}

// Count returns the number of open conns on path
func (h *Hub) Count(path string) int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[path])
}
