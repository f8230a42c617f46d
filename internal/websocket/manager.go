package websocket

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ammar1510/docconnect/internal/logger"
	"github.com/ammar1510/docconnect/internal/metrics"
	"github.com/ammar1510/docconnect/internal/models"
	"github.com/ammar1510/docconnect/internal/presence"
	"github.com/ammar1510/docconnect/internal/protocol"
)

var log = logger.New("websocket")

type clientSet map[*Client]struct{}

// Manager maintains the set of active clients and their broadcast groups.
// Every client belongs to the personal group of its user and to the
// conversation rooms it joined.
type Manager struct {
	clients   clientSet
	users     map[uuid.UUID]clientSet
	rooms     map[uuid.UUID]clientSet
	broadcast chan broadcastFrame
	mutex     sync.RWMutex
}

type broadcastFrame struct {
	frame  []byte
	except uuid.UUID
}

// NewManager creates a new websocket manager
func NewManager() *Manager {
	return &Manager{
		clients:   make(clientSet),
		users:     make(map[uuid.UUID]clientSet),
		rooms:     make(map[uuid.UUID]clientSet),
		broadcast: make(chan broadcastFrame, 1024),
	}
}

// Run fans global broadcasts out until ctx is done, then closes every client
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case b := <-m.broadcast:
			m.mutex.RLock()
			for client := range m.clients {
				if client.UserID != b.except {
					m.deliver(client, b.frame)
				}
			}
			m.mutex.RUnlock()
		case <-ctx.Done():
			m.closeAll()
			return
		}
	}
}

func (m *Manager) register(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.clients[client] = struct{}{}
	set, ok := m.users[client.UserID]
	if !ok {
		set = make(clientSet)
		m.users[client.UserID] = set
	}
	set[client] = struct{}{}
	metrics.Connections.Inc()
	log.Info("Client connected: %s (user %s)", client.ID, client.UserID)
}

// unregister removes the client from every group and closes its send
// channel. It reports false if the client was already gone.
func (m *Manager) unregister(client *Client) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.clients[client]; !ok {
		return false
	}
	delete(m.clients, client)
	if set := m.users[client.UserID]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(m.users, client.UserID)
		}
	}
	for roomID := range client.rooms {
		m.leaveLocked(client, roomID)
	}
	close(client.Send)
	metrics.Connections.Dec()
	log.Info("Client disconnected: %s (user %s)", client.ID, client.UserID)
	return true
}

func (m *Manager) closeAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for client := range m.clients {
		close(client.Send)
		delete(m.clients, client)
		metrics.Connections.Dec()
	}
	m.users = make(map[uuid.UUID]clientSet)
	m.rooms = make(map[uuid.UUID]clientSet)
}

// Join adds the client to a conversation room
func (m *Manager) Join(client *Client, conversationID uuid.UUID) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.clients[client]; !ok {
		return
	}
	room, ok := m.rooms[conversationID]
	if !ok {
		room = make(clientSet)
		m.rooms[conversationID] = room
	}
	room[client] = struct{}{}
	client.rooms[conversationID] = struct{}{}
}

// Leave removes the client from a conversation room
func (m *Manager) Leave(client *Client, conversationID uuid.UUID) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.leaveLocked(client, conversationID)
}

func (m *Manager) leaveLocked(client *Client, conversationID uuid.UUID) {
	delete(client.rooms, conversationID)
	if room := m.rooms[conversationID]; room != nil {
		delete(room, client)
		if len(room) == 0 {
			delete(m.rooms, conversationID)
		}
	}
}

// deliver never blocks. A client whose buffer is full misses the frame.
// Callers hold at least the read lock.
func (m *Manager) deliver(client *Client, frame []byte) bool {
	select {
	case client.Send <- frame:
		return true
	default:
		metrics.EventsDropped.Inc()
		log.Warn("Send buffer full for client %s (user %s), dropping event", client.ID, client.UserID)
		return false
	}
}

// SendToUser sends a frame to every connection of a user
func (m *Manager) SendToUser(userID uuid.UUID, frame []byte) int {
	return m.EmitToUsers(frame, userID)
}

// EmitToUsers sends a frame to every connection of the given users
func (m *Manager) EmitToUsers(frame []byte, userIDs ...uuid.UUID) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	targets := make(clientSet)
	for _, userID := range userIDs {
		for client := range m.users[userID] {
			targets[client] = struct{}{}
		}
	}
	return m.deliverAll(targets, frame)
}

// EmitToConversation sends a frame to the room and to the personal groups of
// alsoUsers. A client in both gets it once.
func (m *Manager) EmitToConversation(conversationID uuid.UUID, frame []byte, alsoUsers ...uuid.UUID) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	targets := make(clientSet)
	for client := range m.rooms[conversationID] {
		targets[client] = struct{}{}
	}
	for _, userID := range alsoUsers {
		for client := range m.users[userID] {
			targets[client] = struct{}{}
		}
	}
	return m.deliverAll(targets, frame)
}

// sendTo writes to one client if it is still registered
func (m *Manager) sendTo(client *Client, frame []byte) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if _, ok := m.clients[client]; !ok {
		return false
	}
	return m.deliver(client, frame)
}

// PresenceBroadcaster publishes presence changes to everyone but the subject
func (m *Manager) PresenceBroadcaster() presence.BroadcastFunc {
	return func(p models.Presence) {
		frame, err := protocol.Encode(protocol.UserStatusChanged{Presence: p})
		if err != nil {
			log.Error("Failed to encode presence for %s: %v", p.UserID, err)
			return
		}
		m.EmitToAllExcept(frame, p.UserID)
	}
}

func (m *Manager) deliverAll(targets clientSet, frame []byte) int {
	sent := 0
	for client := range targets {
		if m.deliver(client, frame) {
			sent++
		}
	}
	return sent
}

// EmitToAll queues a frame for every connected client
func (m *Manager) EmitToAll(frame []byte) {
	m.EmitToAllExcept(frame, uuid.Nil)
}

// EmitToAllExcept queues a frame for every client not owned by userID
func (m *Manager) EmitToAllExcept(frame []byte, userID uuid.UUID) {
	select {
	case m.broadcast <- broadcastFrame{frame: frame, except: userID}:
	default:
		metrics.EventsDropped.Inc()
		log.Warn("Broadcast queue full, dropping event")
	}
}

// ClientCount returns the number of open connections
func (m *Manager) ClientCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}

// UserConnections returns the number of open connections of one user
func (m *Manager) UserConnections(userID uuid.UUID) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.users[userID])
}

// RoomSize returns the number of clients joined to a conversation
func (m *Manager) RoomSize(conversationID uuid.UUID) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms[conversationID])
}
