package websocket

import (
	"sort"
	"sync"
)

const (
	userRoomPrefix  = "user:"
	taskRoomPrefix  = "task:"
	eventRoomPrefix = "event:"
)

func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

func TaskRoom(taskID string) string {
	return taskRoomPrefix + taskID
}

func EventRoom(eventID string) string {
	return eventRoomPrefix + eventID
}

// Rooms is a set-valued map of room name to member connections. A room exists
// while it has at least one member.
type Rooms struct {
	mu       sync.RWMutex
	members  map[string]map[*Client]struct{}
	byClient map[*Client]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		members:  make(map[string]map[*Client]struct{}),
		byClient: make(map[*Client]map[string]struct{}),
	}
}

// Join adds c to room, creating the room if needed.
func (r *Rooms) Join(room string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.members[room] == nil {
		r.members[room] = make(map[*Client]struct{})
	}
	r.members[room][c] = struct{}{}

	if r.byClient[c] == nil {
		r.byClient[c] = make(map[string]struct{})
	}
	r.byClient[c][room] = struct{}{}
}

// Leave removes c from room and drops the room once empty.
func (r *Rooms) Leave(room string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, c)
}

// LeaveAll removes c from every room it joined.
func (r *Rooms) LeaveAll(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.byClient[c] {
		r.leaveLocked(room, c)
	}
	delete(r.byClient, c)
}

func (r *Rooms) leaveLocked(room string, c *Client) {
	if set, ok := r.members[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
	if set, ok := r.byClient[c]; ok {
		delete(set, room)
		if len(set) == 0 {
			delete(r.byClient, c)
		}
	}
}

// Members returns the connections in room as of the call.
func (r *Rooms) Members(room string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[room]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	return clients
}

// RoomsOf returns the sorted room names c belongs to.
func (r *Rooms) RoomsOf(c *Client) []string {
	r.mu.RLock()
	rooms := make([]string, 0, len(r.byClient[c]))
	for room := range r.byClient[c] {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	sort.Strings(rooms)
	return rooms
}

// Count returns the number of non-empty rooms.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
