package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection is a single WebSocket client connection. A connection starts
// anonymous; it is bound to a user ID by the hello message and only then may
// issue chat commands.
type Connection struct {
	ID        string    // connection session ID (UUID)
	Conn      net.Conn  // underlying TCP connection
	Fd        int       // file descriptor for epoll lookups
	CreatedAt time.Time // when the connection was established
	LastPing  time.Time // last heartbeat received from the client

	userID     int64      // atomic; 0 until bound by hello
	writeMu    sync.Mutex // serializes writes to this connection
	processing int32      // atomic flag: 0 = idle, 1 = being read by handleConn
}

// UserID returns the bound user ID, or 0 if the connection has not
// identified itself yet.
func (c *Connection) UserID() int64 {
	return atomic.LoadInt64(&c.userID)
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ConnectionManager is a thread-safe registry that maps connection IDs,
// file descriptors, and bound user IDs to their Connection objects. All
// three lookups are O(1).
type ConnectionManager struct {
	mu     sync.RWMutex
	byID   map[string]*Connection // connection ID -> Connection
	byFd   map[int]*Connection    // fd -> Connection
	byUser map[int64]*Connection  // bound user ID -> Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID:   make(map[string]*Connection),
		byFd:   make(map[int]*Connection),
		byUser: make(map[int64]*Connection),
	}
}

// Add registers a new, not yet bound connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.byFd[conn.Fd] = conn
	cm.mu.Unlock()
}

// Bind associates a connection with a user ID. If the user already has a
// bound connection, the previous one is unbound and returned so the caller
// can close it; at most one live connection per user is kept in the user
// index. Unbinding before eviction keeps the old connection's removal from
// being mistaken for the user going offline.
func (cm *ConnectionManager) Bind(conn *Connection, userID int64) (previous *Connection) {
	cm.mu.Lock()
	if old, ok := cm.byUser[userID]; ok && old != conn {
		atomic.StoreInt64(&old.userID, 0)
		previous = old
	}
	cm.byUser[userID] = conn
	atomic.StoreInt64(&conn.userID, userID)
	cm.mu.Unlock()
	return previous
}

// Remove removes a connection by connection ID, closes the underlying
// network connection, and removes it from all lookup maps. Returns true if
// the connection was found and removed, false if it was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
		delete(cm.byFd, conn.Fd)
		if userID := conn.UserID(); userID != 0 && cm.byUser[userID] == conn {
			delete(cm.byUser, userID)
		}
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for the given connection ID, or nil.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// GetByFd returns the connection for the given file descriptor, or nil.
func (cm *ConnectionManager) GetByFd(fd int) *Connection {
	cm.mu.RLock()
	conn := cm.byFd[fd]
	cm.mu.RUnlock()
	return conn
}

// GetByUser returns the connection bound to the given user ID, or nil if
// the user is offline or has not identified yet.
func (cm *ConnectionManager) GetByUser(userID int64) *Connection {
	cm.mu.RLock()
	conn := cm.byUser[userID]
	cm.mu.RUnlock()
	return conn
}

// GetByConn returns the connection for the given net.Conn by extracting
// its file descriptor. Returns nil if not found.
func (cm *ConnectionManager) GetByConn(c net.Conn) *Connection {
	fd := socketFD(c)
	return cm.GetByFd(fd)
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// Broadcast sends a message to all connected clients. Errors on individual
// connections are ignored; failed connections are cleaned up by the epoll
// event loop when the next read fails.
func (cm *ConnectionManager) Broadcast(msg []byte) {
	for _, conn := range cm.All() {
		_ = conn.WriteMessage(msg)
	}
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
