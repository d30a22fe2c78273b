// Package replication is the boundary to the networked object replication system.
//
// The bridge only depends on the Service and Listener interfaces. Peer is an in-process implementation used by the
// headless engine and the tests.
package replication

import (
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrIDInUse is returned when registering an object with an id that is already used in its scene
	ErrIDInUse = errors.New("replicable id in use")
	// ErrNotConnected is returned when a client invokes without a connection
	ErrNotConnected = errors.New("not connected")
	// ErrNoPermission is returned when invoking an RPC on an object this side does not control
	ErrNoPermission = errors.New("no permission")
)

// Listener receives network events from a Service
type Listener interface {
	// OnRemoteCreate is called on clients when the server replicates a new object. It returns the local replica, or
	// nil if the class is unknown. Roles arrive with the first attribute update.
	OnRemoteCreate(className string, scene string, id uint64) *Object
	// OnRemoteDeregister is called on clients when the server destroyed an object
	OnRemoteDeregister(obj *Object)
	// OnNewController is called on the server when a client connected
	OnNewController(controller *Controller)
	// OnControllerLost is called on the server when the connection of a controller is gone
	OnControllerLost(controller *Controller)
	// OnDisconnected is called on clients when the server acknowledged the disconnect
	OnDisconnected()
}

// Service is the replication service consumed by the bridge
type Service interface {
	NetMode() NetMode
	// Register registers obj. If explicit is false, id is ignored and a free id is assigned.
	Register(obj *Object, id uint64, explicit bool) error
	Deregister(obj *Object)
	Object(scene string, id uint64) *Object
	// Invoke sends an RPC to the other side
	Invoke(obj *Object, rpc string, args []interface{}, reliable bool) error
	Receive()
	Send(fullUpdate bool)
	Connect(host string, port int) error
	Disconnect()
	SetListener(listener Listener)
	Metrics() *Metrics
	Close()
}

// Metrics counts network traffic in a sample window
type Metrics struct {
	PacketsSent     int
	PacketsReceived int
	BytesSent       int
	BytesReceived   int
	SampleStart     time.Time
}

// SampleAge returns the age of the sample window
func (m *Metrics) SampleAge() time.Duration {
	return time.Since(m.SampleStart)
}

// ResetSampleWindow clears the counters
func (m *Metrics) ResetSampleWindow() {
	*m = Metrics{SampleStart: time.Now()}
}
