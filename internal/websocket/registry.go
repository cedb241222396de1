package websocket

import (
	"sort"
	"sync"
)

// Registry maps each user to the single connection reachable for targeted
// sends. The most recent registration for a user wins.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// Register stores c as the connection for userID, replacing any previous one.
func (r *Registry) Register(userID string, c *Client) {
	r.mu.Lock()
	r.clients[userID] = c
	r.mu.Unlock()
}

// Unregister removes c only if it is still the stored connection for its
// user. It reports whether an entry was removed.
func (r *Registry) Unregister(c *Client) bool {
	if c == nil {
		return false
	}
	userID := c.UserID()

	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.clients[userID]; ok && current == c {
		delete(r.clients, userID)
		return true
	}
	return false
}

func (r *Registry) Lookup(userID string) (*Client, bool) {
	r.mu.RLock()
	c, ok := r.clients[userID]
	r.mu.RUnlock()
	return c, ok
}

func (r *Registry) IsConnected(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Snapshot returns the connected user ids in ascending order.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Clients returns the registered connections as of the call.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// Count returns the number of distinct connected users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
