package socketio

import (
	"net"
	"sync"
)

// ClientLimiter caps the number of concurrent remote clients that can drive
// mounts. Loopback clients are never counted. When a remote client exceeds
// the cap the oldest remote client is evicted. A cap of zero or less
// disables the limit.
type ClientLimiter struct {
	mu        sync.Mutex
	maxRemote int
	// remote client IDs, oldest first
	remote []string
	// clientID -> loopback
	clients map[string]bool
}

// NewClientLimiter creates a limiter allowing up to maxRemote remote clients.
func NewClientLimiter(maxRemote int) *ClientLimiter {
	return &ClientLimiter{
		maxRemote: maxRemote,
		clients:   make(map[string]bool),
	}
}

// Admit registers clientID connecting from addr ("ip" or "ip:port") and
// returns the ID of the client it displaced, if any.
func (l *ClientLimiter) Admit(clientID, addr string) (evictedID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.clients[clientID]; ok {
		return ""
	}

	local := isLoopback(addr)
	l.clients[clientID] = local
	if local {
		return ""
	}

	l.remote = append(l.remote, clientID)
	if l.maxRemote <= 0 || len(l.remote) <= l.maxRemote {
		return ""
	}

	evictedID = l.remote[0]
	l.remote = l.remote[1:]
	delete(l.clients, evictedID)
	return evictedID
}

// Release forgets clientID after it disconnected.
func (l *ClientLimiter) Release(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	local, ok := l.clients[clientID]
	if !ok {
		return
	}
	delete(l.clients, clientID)
	if local {
		return
	}
	for i, id := range l.remote {
		if id == clientID {
			l.remote = append(l.remote[:i], l.remote[i+1:]...)
			return
		}
	}
}

// Remote returns the number of tracked remote clients.
func (l *ClientLimiter) Remote() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.remote)
}

func isLoopback(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
