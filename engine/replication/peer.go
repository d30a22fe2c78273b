package replication

import (
	"sort"
	"sync"
	"time"

	"github.com/netbricks/netbricks/engine/common"
	"github.com/netbricks/netbricks/engine/consts"
	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/netbricks/netbricks/engine/gwutils"
	"github.com/pkg/errors"
)

// ids assigned by clients to local-only objects start here so they never clash with server ids
const _CLIENT_LOCAL_ID_BASE = 1 << 32

type objectKey struct {
	scene string
	id    uint64
}

func (k objectKey) less(o objectKey) bool {
	if k.scene != o.scene {
		return k.scene < o.scene
	}
	return k.id < o.id
}

// Peer is an in-process Service
//
// A server peer listens on a Hub port and replicates its objects to every connected client on full updates. A client
// peer connects to a server and mirrors the objects it receives.
type Peer struct {
	hub      *Hub
	mode     NetMode
	port     int
	listener Listener

	objects map[objectKey]*Object
	nextID  map[string]uint64

	// server side
	connsLock    sync.Mutex
	pendingConns []*endpoint
	conns        map[common.ConnectionID]*endpoint

	// client side
	server *endpoint

	metrics Metrics
}

func newPeer(hub *Hub, mode NetMode) *Peer {
	return &Peer{
		hub:     hub,
		mode:    mode,
		objects: map[objectKey]*Object{},
		nextID:  map[string]uint64{},
		conns:   map[common.ConnectionID]*endpoint{},
		metrics: Metrics{SampleStart: time.Now()},
	}
}

// NewServer creates a server peer listening on port of hub
func NewServer(hub *Hub, port int) (*Peer, error) {
	p := newPeer(hub, NetModeServer)
	p.port = port
	if err := hub.listen(port, p); err != nil {
		return nil, err
	}
	return p, nil
}

// NewClient creates a client peer; call Connect to reach a server
func NewClient(hub *Hub) *Peer {
	return newPeer(hub, NetModeClient)
}

// NetMode returns the network mode of the peer
func (p *Peer) NetMode() NetMode {
	return p.mode
}

// SetListener sets the receiver of network events
func (p *Peer) SetListener(listener Listener) {
	p.listener = listener
}

// Metrics returns the traffic counters of the current sample window
func (p *Peer) Metrics() *Metrics {
	return &p.metrics
}

// Object returns the registered object, or nil
func (p *Peer) Object(scene string, id uint64) *Object {
	return p.objects[objectKey{scene, id}]
}

// Register registers obj, assigning a free id unless explicit is set
func (p *Peer) Register(obj *Object, id uint64, explicit bool) error {
	if obj.registered {
		return errors.Errorf("%s is already registered", obj)
	}
	if explicit {
		if p.objects[objectKey{obj.scene, id}] != nil {
			return errors.Wrapf(ErrIDInUse, "%s#%d", obj.scene, id)
		}
	} else {
		id = p.allocateID(obj.scene)
	}

	obj.id = id
	obj.registered = true
	p.objects[objectKey{obj.scene, id}] = obj
	return nil
}

func (p *Peer) allocateID(scene string) uint64 {
	id, ok := p.nextID[scene]
	if !ok && p.mode == NetModeClient {
		id = _CLIENT_LOCAL_ID_BASE
	}
	for p.objects[objectKey{scene, id}] != nil {
		id++
	}
	p.nextID[scene] = id + 1
	return id
}

// Deregister removes obj; clients that know it are told on the next Send
func (p *Peer) Deregister(obj *Object) {
	if !obj.registered {
		return
	}
	key := objectKey{obj.scene, obj.id}
	if p.objects[key] != obj {
		return
	}
	delete(p.objects, key)
	obj.registered = false
	if obj.owner != nil {
		obj.owner.ReleaseControl()
	}

	for _, ep := range p.conns {
		if _, ok := ep.replicated[key]; ok {
			delete(ep.replicated, key)
			ep.queue(&packet{Type: pktDeregister, Scene: key.scene, ID: key.id}, true)
		}
	}
}

// Invoke sends an RPC to the other side: from the server to the owning client, from a client to the server
func (p *Peer) Invoke(obj *Object, rpc string, args []interface{}, reliable bool) error {
	var ep *endpoint
	if p.mode == NetModeServer {
		if obj.owner == nil {
			return errors.Wrapf(ErrNoPermission, "%s has no owner to invoke %s on", obj, rpc)
		}
		ep = p.conns[obj.owner.connID]
	} else {
		if obj.roles.Local != RoleAutonomousProxy {
			return errors.Wrapf(ErrNoPermission, "%s is %s, cannot invoke %s", obj, obj.roles.Local, rpc)
		}
		ep = p.server
	}
	if ep == nil || ep.closing {
		return errors.Wrapf(ErrNotConnected, "invoke %s on %s", rpc, obj)
	}

	ep.queue(&packet{Type: pktInvoke, Scene: obj.scene, ID: obj.id, Name: rpc, Args: args}, reliable)
	return nil
}

// Connect connects a client peer to the server listening on port
func (p *Peer) Connect(host string, port int) error {
	if p.mode != NetModeClient {
		return errors.Errorf("only clients can connect")
	}
	if p.server != nil {
		return errors.Errorf("already connected")
	}
	ep, err := p.hub.dial(host, port, p)
	if err != nil {
		return err
	}
	p.server = ep
	ep.queue(&packet{Type: pktHello}, true)
	gwlog.Infof("%s connected to %s:%d as connection %d", p, host, port, ep.connID)
	return nil
}

// Disconnect asks the server to close the connection; the listener is told when the server acknowledged it
func (p *Peer) Disconnect() {
	if p.mode != NetModeClient || p.server == nil || p.server.closing {
		return
	}
	p.server.queue(&packet{Type: pktDisconnect}, true)
	p.server.closing = true
}

// Close stops listening and drops every connection
func (p *Peer) Close() {
	if p.mode == NetModeServer {
		p.hub.unlisten(p.port, p)
	}
	for _, ep := range p.endpoints() {
		ep.close()
	}
	p.conns = map[common.ConnectionID]*endpoint{}
	p.server = nil
}

func (p *Peer) String() string {
	return "Peer<" + p.mode.String() + ">"
}

func (p *Peer) accept(ep *endpoint) {
	p.connsLock.Lock()
	p.pendingConns = append(p.pendingConns, ep)
	p.connsLock.Unlock()
}

func (p *Peer) endpoints() []*endpoint {
	if p.mode == NetModeClient {
		if p.server == nil {
			return nil
		}
		return []*endpoint{p.server}
	}

	p.connsLock.Lock()
	for _, ep := range p.pendingConns {
		p.conns[ep.connID] = ep
	}
	p.pendingConns = nil
	p.connsLock.Unlock()

	eps := make([]*endpoint, 0, len(p.conns))
	for _, ep := range p.conns {
		eps = append(eps, ep)
	}
	sort.Slice(eps, func(i, j int) bool {
		return eps[i].connID < eps[j].connID
	})
	return eps
}

func (p *Peer) sortedKeys() []objectKey {
	keys := make([]objectKey, 0, len(p.objects))
	for key := range p.objects {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].less(keys[j])
	})
	return keys
}

// Receive handles every packet that arrived since the last call
func (p *Peer) Receive() {
	for _, ep := range p.endpoints() {
		for _, data := range ep.takeInbox() {
			p.metrics.PacketsReceived++
			p.metrics.BytesReceived += len(data)

			pkt, err := unpackPacket(data)
			if err != nil {
				gwlog.Errorf("%s: drop packet from connection %d: %v", p, ep.connID, err)
				continue
			}
			if consts.DEBUG_PACKETS {
				gwlog.Debugf("%s <<< %s from connection %d", p, pkt, ep.connID)
			}
			if p.mode == NetModeServer {
				p.handleServerPacket(ep, pkt)
			} else {
				p.handleClientPacket(ep, pkt)
			}
		}
		if p.mode == NetModeServer && !ep.closing && ep.otherClosed() {
			gwlog.Infof("%s: connection %d closed", p, ep.connID)
			p.loseController(ep)
			ep.closing = true
		}
	}
}

func (p *Peer) handleServerPacket(ep *endpoint, pkt *packet) {
	switch pkt.Type {
	case pktHello:
		if ep.controller != nil || ep.closing {
			return
		}
		ep.controller = NewController(ep.connID)
		if p.listener != nil {
			gwutils.RunPanicless(func() {
				p.listener.OnNewController(ep.controller)
			})
		}
	case pktInvoke:
		obj := p.objects[objectKey{pkt.Scene, pkt.ID}]
		if obj == nil {
			gwlog.Debugf("%s: invoke %s on unknown object %s#%d", p, pkt.Name, pkt.Scene, pkt.ID)
			return
		}
		if ep.controller == nil || obj.owner != ep.controller {
			gwlog.Warnf("%s: connection %d invoked %s on %s without owning it", p, ep.connID, pkt.Name, obj)
			return
		}
		p.invokeLocal(obj, pkt)
	case pktDisconnect:
		p.loseController(ep)
		ep.queue(&packet{Type: pktDisconnectAck}, true)
		ep.closing = true
	default:
		gwlog.Warnf("%s: unexpected %s from connection %d", p, pkt, ep.connID)
	}
}

// loseController reports the controller of a closing connection and releases its pawn
func (p *Peer) loseController(ep *endpoint) {
	c := ep.controller
	if c == nil {
		return
	}
	ep.controller = nil
	if p.listener != nil {
		gwutils.RunPanicless(func() { p.listener.OnControllerLost(c) })
	}
	c.ReleaseControl()
}

func (p *Peer) handleClientPacket(ep *endpoint, pkt *packet) {
	key := objectKey{pkt.Scene, pkt.ID}
	switch pkt.Type {
	case pktCreate:
		obj := p.objects[key]
		if obj != nil && obj.class.Name() == pkt.Class {
			return
		} else if obj != nil {
			gwlog.Warnf("%s: %s replaced by a remote %s", p, obj, pkt.Class)
			p.Deregister(obj)
			if p.listener != nil {
				old := obj
				gwutils.RunPanicless(func() { p.listener.OnRemoteDeregister(old) })
			}
		}
		if p.listener == nil {
			return
		}
		gwutils.RunPanicless(func() {
			obj = p.listener.OnRemoteCreate(pkt.Class, pkt.Scene, pkt.ID)
		})
		if obj == nil {
			gwlog.Warnf("%s: cannot create remote %s %s#%d", p, pkt.Class, pkt.Scene, pkt.ID)
			return
		}
		if !obj.registered {
			obj.scene = pkt.Scene
			obj.id = pkt.ID
			obj.registered = true
			p.objects[key] = obj
		}
	case pktAttributes:
		obj := p.objects[key]
		if obj == nil {
			return
		}
		names := make([]string, 0, len(pkt.Attrs))
		for name := range pkt.Attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			val, err := obj.class.ConvertAttribute(name, pkt.Attrs[name])
			if err != nil {
				gwlog.Warnf("%s: %s.%s: %v", p, obj, name, err)
				continue
			}
			if obj.setReplicated(name, val) {
				gwutils.RunPanicless(func() { obj.replicated(name) })
			}
		}
		if pkt.HasRoles && obj.roles != pkt.roles() {
			obj.roles = pkt.roles()
			gwutils.RunPanicless(func() { obj.replicated(RolesAttribute) })
		}
	case pktInvoke:
		obj := p.objects[key]
		if obj == nil {
			gwlog.Debugf("%s: invoke %s on unknown object %s#%d", p, pkt.Name, pkt.Scene, pkt.ID)
			return
		}
		p.invokeLocal(obj, pkt)
	case pktDeregister:
		obj := p.objects[key]
		if obj == nil {
			return
		}
		p.Deregister(obj)
		if p.listener != nil {
			gwutils.RunPanicless(func() { p.listener.OnRemoteDeregister(obj) })
		}
	case pktDisconnectAck:
		ep.close()
		p.server = nil
		if p.listener != nil {
			gwutils.RunPanicless(p.listener.OnDisconnected)
		}
	default:
		gwlog.Warnf("%s: unexpected %s", p, pkt)
	}
}

func (p *Peer) invokeLocal(obj *Object, pkt *packet) {
	args, err := obj.class.ConvertArguments(pkt.Name, pkt.Args)
	if err != nil {
		gwlog.Warnf("%s: invoke %s on %s: %v", p, pkt.Name, obj, err)
		return
	}
	gwutils.RunPanicless(func() { obj.invoked(pkt.Name, args) })
}

// Send flushes queued packets; attributes and unreliable RPCs are only sent on full updates
func (p *Peer) Send(fullUpdate bool) {
	for _, ep := range p.endpoints() {
		if ep.closed {
			continue
		}
		var pkts []*packet
		if fullUpdate && p.mode == NetModeServer && !ep.closing && ep.controller != nil {
			pkts = p.replicate(ep)
		}
		pkts = append(pkts, ep.reliable...)
		ep.reliable = nil
		if fullUpdate {
			pkts = append(pkts, ep.unreliable...)
			ep.unreliable = nil
		}

		for _, pkt := range pkts {
			data, err := packPacket(pkt)
			if err != nil {
				gwlog.Errorf("%s: %v", p, err)
				continue
			}
			if consts.DEBUG_PACKETS {
				gwlog.Debugf("%s >>> %s to connection %d", p, pkt, ep.connID)
			}
			if ep.deliver(data) {
				p.metrics.PacketsSent++
				p.metrics.BytesSent += len(data)
			}
		}

		if ep.closing && p.mode == NetModeServer {
			ep.close()
			delete(p.conns, ep.connID)
		}
	}

	if fullUpdate {
		for _, obj := range p.objects {
			obj.ClearDirty()
		}
	}
}

// replicate builds create and attribute packets of every object for one connection
func (p *Peer) replicate(ep *endpoint) []*packet {
	var pkts []*packet
	for _, key := range p.sortedKeys() {
		obj := p.objects[key]
		sent, created := ep.replicated[key]
		isOwner := obj.owner != nil && obj.owner == ep.controller
		roles := Roles{Local: obj.roles.Remote, Remote: obj.roles.Local}
		if isOwner {
			roles.Local = RoleAutonomousProxy
		}
		if roles.Local == RoleNone {
			continue
		}

		if !created {
			sent = map[string]interface{}{}
			ep.replicated[key] = sent
			pkts = append(pkts, &packet{Type: pktCreate, Scene: key.scene, ID: key.id, Class: obj.class.Name()})
		}

		attrs := &packet{Type: pktAttributes, Scene: key.scene, ID: key.id, Attrs: map[string]interface{}{}}
		for _, name := range obj.class.CanReplicate(isOwner, !created) {
			if name == RolesAttribute {
				if last, ok := sent[name]; !ok || last.(Roles) != roles {
					sent[name] = roles
					attrs.HasRoles, attrs.Local, attrs.Remote = true, roles.Local, roles.Remote
				}
				continue
			}
			val, ok := obj.attrs[name]
			if !ok {
				continue
			}
			if last, ok := sent[name]; ok && last == val {
				continue
			}
			sent[name] = val
			attrs.Attrs[name] = val
		}
		if len(attrs.Attrs) > 0 || attrs.HasRoles {
			pkts = append(pkts, attrs)
		}
	}
	return pkts
}
