package gateway

import (
	"sync"
	"time"
)

const idleAfter = 5 * time.Minute

// ClientRegistry tracks connected frontends by connection ID and by
// participant identity. One identity may hold several connections.
type ClientRegistry struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	byIdentity map[string]map[string]*Client
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients:    make(map[string]*Client),
		byIdentity: make(map[string]map[string]*Client),
	}
}

func (r *ClientRegistry) Add(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[client.ID] = client
	conns := r.byIdentity[client.Identity]
	if conns == nil {
		conns = make(map[string]*Client)
		r.byIdentity[client.Identity] = conns
	}
	conns[client.ID] = client
}

func (r *ClientRegistry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[clientID]
	if !ok {
		return
	}
	delete(r.clients, clientID)
	if conns := r.byIdentity[client.Identity]; conns != nil {
		delete(conns, clientID)
		if len(conns) == 0 {
			delete(r.byIdentity, client.Identity)
		}
	}
}

func (r *ClientRegistry) Get(clientID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.clients[clientID]
	return client, exists
}

// All returns every connected client, authenticated or not.
func (r *ClientRegistry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		out = append(out, client)
	}
	return out
}

// Recipients returns the authenticated connections of the given identities,
// or every authenticated connection when identities is empty.
func (r *ClientRegistry) Recipients(identities []string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*Client
	if len(identities) == 0 {
		candidates = make([]*Client, 0, len(r.clients))
		for _, client := range r.clients {
			candidates = append(candidates, client)
		}
	} else {
		seen := make(map[string]bool, len(identities))
		for _, identity := range identities {
			if seen[identity] {
				continue
			}
			seen[identity] = true
			for _, client := range r.byIdentity[identity] {
				candidates = append(candidates, client)
			}
		}
	}

	out := candidates[:0]
	for _, client := range candidates {
		if client.IsAuthenticated() {
			out = append(out, client)
		}
	}
	return out
}

func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

// Snapshot describes every connected client.
func (r *ClientRegistry) Snapshot() []ClientInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	infos := make([]ClientInfo, 0, len(r.clients))
	for _, client := range r.clients {
		infos = append(infos, ClientInfo{
			ID:            client.ID,
			Identity:      client.Identity,
			Authenticated: client.IsAuthenticated(),
			ConnectedAt:   client.ConnectedAt,
			LastActivity:  client.LastActivity,
			IPAddress:     client.IPAddress,
			Idle:          now.Sub(client.LastActivity) > idleAfter,
		})
	}
	return infos
}

// Touch records inbound activity for a client.
func (r *ClientRegistry) Touch(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, exists := r.clients[clientID]; exists {
		client.LastActivity = time.Now()
	}
}
