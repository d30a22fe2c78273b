// Package host is the boundary to the game engine: host objects, scenes and the message bus.
package host

import (
	"fmt"

	"github.com/netbricks/netbricks/engine/common"
)

// MessageBrick is a message sensor or actuator whose subject can be rewritten
type MessageBrick struct {
	Subject string
}

// Message is one event on the message bus
type Message struct {
	Subject string
	Body    string
	To      string // recipient object name, empty for broadcast
	From    common.ObjectID
}

func (m Message) String() string {
	if m.To == "" {
		return fmt.Sprintf("Message<%s>", m.Subject)
	}
	return fmt.Sprintf("Message<%s -> %s>", m.Subject, m.To)
}

// Object is a host engine object
type Object interface {
	ID() common.ObjectID
	Name() string
	Scene() Scene
	// Invalid returns if the object was destroyed
	Invalid() bool
	// End destroys the object at the end of the frame
	End()
	Property(name string) (interface{}, bool)
	SetProperty(name string, val interface{})
	// State returns the active behavior state mask
	State() uint32
	SetState(state uint32)
	// ControllerStates returns the states used by the object's logic controllers
	ControllerStates() uint32
	MessageSensors() []*MessageBrick
	MessageActuators() []*MessageBrick
	SendMessage(subject string, body string, to string)
}

// Scene is a host engine scene
type Scene interface {
	Name() string
	// Objects returns the active objects
	Objects() []Object
	// InactiveObjects returns the objects that can be added by name
	InactiveObjects() []Object
	// AddObject spawns a copy of the inactive object with the name
	AddObject(name string) (Object, error)
}

// Bus is the single-channel message bus
//
// Messages sent during a frame are delivered in the next frame.
type Bus interface {
	Send(msg Message)
	// Drain returns the messages of the current frame for the recipient, once per frame
	Drain(recipient string) []Message
}

// Engine is the game engine
type Engine interface {
	Scenes() []Scene
	Scene(name string) Scene
	Bus() Bus
	// NextFrame advances the engine by one logic frame
	NextFrame()
	LogicTickRate() int
}
