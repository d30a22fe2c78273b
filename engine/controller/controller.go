// Package controller matches connections waiting for a pawn with the pawn types chosen by game logic.
//
// When a client connects, its controller is queued and CONTROLLER_REQUEST is broadcast. Game logic answers with a
// NEW_PAWN=<type> scene message; the oldest waiting controller gets a pawn of that type. Answers carry no request
// id, so they are matched strictly in arrival order.
package controller

import (
	"fmt"

	"github.com/netbricks/netbricks/engine/common"
	"github.com/netbricks/netbricks/engine/consts"
	"github.com/netbricks/netbricks/engine/entity"
	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/netbricks/netbricks/engine/host"
	"github.com/netbricks/netbricks/engine/replication"
	"github.com/netbricks/netbricks/engine/subject"
	"github.com/pkg/errors"
)

const newPawnMessage = "init"

var (
	// ErrUnknownType is returned when an assignment names a type that is not network enabled
	ErrUnknownType = errors.New("unknown pawn type")
	// ErrNoController is returned when reassigning a pawn that no controller owns
	ErrNoController = errors.New("pawn has no controller")
	// ErrNoPendingController is returned when an assignment arrives while no controller is waiting
	ErrNoPendingController = errors.New("no pending controller")
	// ErrNoPawn is returned when messaging the pawn of an instigator that created none
	ErrNoPawn = errors.New("no pawn created by instigator")
)

// State is the state of one assignment
type State int

const (
	// StateRequested means the controller waits in the queue
	StateRequested State = iota
	// StateAssigned means a pawn type was chosen for the controller
	StateAssigned
	// StateActive means the controller controls the pawn
	StateActive
	// StateReassigned means the pawn was replaced by a pawn of another type
	StateReassigned
	// StateReleased means the pawn is gone
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "Requested"
	case StateAssigned:
		return "Assigned"
	case StateActive:
		return "Active"
	case StateReassigned:
		return "Reassigned"
	case StateReleased:
		return "Released"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Assignment pairs a controller with one pawn
type Assignment struct {
	Seq        uint64 // arrival order of the request
	Controller *replication.Controller
	State      State
	Pawn       *entity.Entity
}

func (a *Assignment) String() string {
	return fmt.Sprintf("Assignment<%d %s %s>", a.Seq, a.Controller, a.State)
}

type instigatorKey struct {
	scene string
	id    common.ObjectID
}

// Manager runs the assignment protocol; it is driven by the game loop
type Manager struct {
	registry    *entity.Registry
	engine      host.Engine
	pending     []*Assignment
	assignments map[*replication.Controller]*Assignment
	pawns       map[instigatorKey]*entity.Entity
	seq         uint64
}

// NewManager creates a manager spawning pawns into the scenes of engine
func NewManager(registry *entity.Registry, engine host.Engine) *Manager {
	return &Manager{
		registry:    registry,
		engine:      engine,
		assignments: map[*replication.Controller]*Assignment{},
		pawns:       map[instigatorKey]*entity.Entity{},
	}
}

// Pending returns the number of waiting controllers
func (m *Manager) Pending() int {
	return len(m.pending)
}

// Assignment returns the current assignment of the controller, or nil
func (m *Manager) Assignment(c *replication.Controller) *Assignment {
	return m.assignments[c]
}

// OnNewController queues a new controller
func (m *Manager) OnNewController(c *replication.Controller) {
	m.RequestAssignment(c)
}

// OnControllerLost forgets the controller of a closed connection and destroys its pawn
func (m *Manager) OnControllerLost(c *replication.Controller) {
	a := m.assignments[c]
	if a == nil {
		return
	}
	delete(m.assignments, c)
	for i, pending := range m.pending {
		if pending == a {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}

	if a.Pawn != nil && !a.Pawn.IsDestroyed() {
		m.registry.Unbind(a.Pawn)
		a.Pawn.Host.End()
	}
	a.State = StateReleased
	gwlog.Infof("controller: %s lost its connection (%d pending)", a, len(m.pending))
}

// RequestAssignment queues the controller and broadcasts that a pawn is wanted
func (m *Manager) RequestAssignment(c *replication.Controller) *Assignment {
	m.seq++
	a := &Assignment{Seq: m.seq, Controller: c, State: StateRequested}
	m.pending = append(m.pending, a)
	m.assignments[c] = a
	gwlog.Infof("controller: %s requested a pawn (%d pending)", a, len(m.pending))
	m.requestAssignment()
	return a
}

func (m *Manager) requestAssignment() {
	subj := subject.MustEncode(subject.Global(subject.ControllerRequest, ""))
	m.engine.Bus().Send(host.Message{Subject: subj, Body: consts.INTERNAL_MESSAGE_BODY})
}

// OnAssigned gives the oldest waiting controller a new pawn of the type, spawned in the scene
//
// The instigator is the host object that chose the type; SendToNewPawn addresses the pawn through it.
func (m *Manager) OnAssigned(sceneName string, typeName string, instigator common.ObjectID) (*Assignment, error) {
	if len(m.pending) == 0 {
		return nil, errors.Wrapf(ErrNoPendingController, "assign %s", typeName)
	}
	et, err := m.registry.Synthesizer().Get(typeName)
	if err != nil {
		return nil, errors.Wrapf(ErrUnknownType, "%s: %v", typeName, err)
	}

	a := m.pending[0]
	m.pending = m.pending[1:]
	a.State = StateAssigned
	gwlog.Infof("controller: %s matched with %s from %s", a, typeName, instigator)

	pawn, err := m.spawnPawn(sceneName, et, a.Controller, instigatorKey{sceneName, instigator})
	if err != nil {
		a.State = StateReleased
		delete(m.assignments, a.Controller)
	} else {
		a.Pawn = pawn
		a.State = StateActive
	}

	if len(m.pending) > 0 {
		m.requestAssignment()
	}
	return a, err
}

// OnReassigned replaces the pawn with a new pawn of the type, moving its controller over
func (m *Manager) OnReassigned(typeName string, previous *entity.Entity) (*Assignment, error) {
	et, err := m.registry.Synthesizer().Get(typeName)
	if err != nil {
		return nil, errors.Wrapf(ErrUnknownType, "%s: %v", typeName, err)
	}
	c := previous.Object.Owner()
	if c == nil {
		return nil, errors.Wrapf(ErrNoController, "%s", previous)
	}

	old := m.assignments[c]
	if old == nil {
		old = &Assignment{Controller: c, Pawn: previous}
	}
	old.State = StateReassigned
	c.ReleaseControl()

	m.seq++
	a := &Assignment{Seq: m.seq, Controller: c, State: StateAssigned}
	m.assignments[c] = a
	pawn, err := m.spawnPawn(previous.Scene(), et, c, instigatorKey{previous.Scene(), previous.Host.ID()})
	if err != nil {
		a.State = StateReleased
		delete(m.assignments, c)
		return a, err
	}
	a.Pawn = pawn
	a.State = StateActive

	m.registry.Unbind(previous)
	previous.Host.End()
	old.State = StateReleased
	gwlog.Infof("controller: %s reassigned from %s to %s", c, previous, pawn)
	return a, nil
}

func (m *Manager) spawnPawn(sceneName string, et *entity.EntityType, c *replication.Controller, instigator instigatorKey) (*entity.Entity, error) {
	scene := m.engine.Scene(sceneName)
	if scene == nil {
		return nil, errors.Errorf("spawn %s: scene %s not found", et.Name(), sceneName)
	}
	obj, err := scene.AddObject(et.Descriptor().ObjectName)
	if err != nil {
		return nil, errors.WithMessagef(err, "spawn %s", et.Name())
	}
	pawn, err := m.registry.BindType(obj, et)
	if err != nil {
		obj.End()
		return nil, err
	}

	c.TakeControl(pawn.Object)
	m.pawns[instigator] = pawn
	pawn.ReceiveSelfMessage(newPawnMessage)
	return pawn, nil
}

// SendToNewPawn sends a self message to the last pawn the instigator created
func (m *Manager) SendToNewPawn(sceneName string, instigator common.ObjectID, message string) error {
	pawn := m.pawns[instigatorKey{sceneName, instigator}]
	if pawn == nil || pawn.IsDestroyed() {
		return errors.Wrapf(ErrNoPawn, "%s#%s", sceneName, instigator)
	}
	pawn.ReceiveSelfMessage(message)
	return nil
}

// CullReleased forgets assignments and instigators whose pawn was destroyed
func (m *Manager) CullReleased() {
	for c, a := range m.assignments {
		if a.Pawn != nil && a.Pawn.IsDestroyed() {
			a.State = StateReleased
			delete(m.assignments, c)
		}
	}
	for key, pawn := range m.pawns {
		if pawn.IsDestroyed() {
			delete(m.pawns, key)
		}
	}
}
