package replication

import (
	"sync"

	"github.com/netbricks/netbricks/engine/common"
	"github.com/pkg/errors"
)

// Hub connects in-process peers by port number
type Hub struct {
	lock       sync.Mutex
	servers    map[int]*Peer
	nextConnID common.ConnectionID
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{servers: map[int]*Peer{}}
}

func (hub *Hub) listen(port int, server *Peer) error {
	hub.lock.Lock()
	defer hub.lock.Unlock()
	if _, ok := hub.servers[port]; ok {
		return errors.Errorf("port %d is already in use", port)
	}
	hub.servers[port] = server
	return nil
}

func (hub *Hub) unlisten(port int, server *Peer) {
	hub.lock.Lock()
	if hub.servers[port] == server {
		delete(hub.servers, port)
	}
	hub.lock.Unlock()
}

// dial returns the client side endpoint of a new link to the server listening on port
//
// Every host name reaches the in-process server.
func (hub *Hub) dial(host string, port int, client *Peer) (*endpoint, error) {
	hub.lock.Lock()
	server := hub.servers[port]
	hub.nextConnID++
	connID := hub.nextConnID
	hub.lock.Unlock()

	if server == nil {
		return nil, errors.Errorf("connect %s:%d: connection refused", host, port)
	}

	clientSide := newEndpoint(connID, client)
	serverSide := newEndpoint(connID, server)
	clientSide.other = serverSide
	serverSide.other = clientSide
	server.accept(serverSide)
	return clientSide, nil
}

// endpoint is one side of an in-process link
type endpoint struct {
	connID common.ConnectionID
	peer   *Peer
	other  *endpoint

	inboxLock sync.Mutex
	inbox     [][]byte

	reliable   []*packet
	unreliable []*packet

	// server side state
	controller *Controller
	replicated map[objectKey]map[string]interface{}
	closing    bool
	closed     bool
}

func newEndpoint(connID common.ConnectionID, peer *Peer) *endpoint {
	return &endpoint{
		connID:     connID,
		peer:       peer,
		replicated: map[objectKey]map[string]interface{}{},
	}
}

func (ep *endpoint) queue(pkt *packet, reliable bool) {
	if reliable {
		ep.reliable = append(ep.reliable, pkt)
	} else {
		ep.unreliable = append(ep.unreliable, pkt)
	}
}

// deliver puts data in the inbox of the other side
func (ep *endpoint) deliver(data []byte) bool {
	other := ep.other
	other.inboxLock.Lock()
	defer other.inboxLock.Unlock()
	if other.closed {
		return false
	}
	other.inbox = append(other.inbox, data)
	return true
}

func (ep *endpoint) takeInbox() [][]byte {
	ep.inboxLock.Lock()
	frames := ep.inbox
	ep.inbox = nil
	ep.inboxLock.Unlock()
	return frames
}

func (ep *endpoint) close() {
	ep.inboxLock.Lock()
	ep.closed = true
	ep.inbox = nil
	ep.inboxLock.Unlock()
}

// otherClosed returns if the other side of the link was closed
func (ep *endpoint) otherClosed() bool {
	other := ep.other
	other.inboxLock.Lock()
	defer other.inboxLock.Unlock()
	return other.closed
}
