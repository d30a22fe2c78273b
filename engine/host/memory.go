package host

import (
	"sort"
	"sync"

	"github.com/netbricks/netbricks/engine/common"
	"github.com/pkg/errors"
)

// MemoryBus is a double-buffered in-memory Bus
type MemoryBus struct {
	lock    sync.Mutex
	current []Message
	next    []Message
	drained common.StringSet
}

// NewMemoryBus creates an empty bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{drained: common.StringSet{}}
}

// Send queues the message for the next frame
func (bus *MemoryBus) Send(msg Message) {
	bus.lock.Lock()
	bus.next = append(bus.next, msg)
	bus.lock.Unlock()
}

// Drain returns the messages of the current frame for the recipient, once per frame
func (bus *MemoryBus) Drain(recipient string) []Message {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	if bus.drained.Contains(recipient) {
		return nil
	}
	bus.drained.Add(recipient)

	var msgs []Message
	for _, msg := range bus.current {
		if msg.To == "" || msg.To == recipient {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// Current returns every message of the current frame
func (bus *MemoryBus) Current() []Message {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	msgs := make([]Message, len(bus.current))
	copy(msgs, bus.current)
	return msgs
}

// Pending returns the messages waiting for the next frame
func (bus *MemoryBus) Pending() []Message {
	bus.lock.Lock()
	defer bus.lock.Unlock()
	msgs := make([]Message, len(bus.next))
	copy(msgs, bus.next)
	return msgs
}

func (bus *MemoryBus) swap() {
	bus.lock.Lock()
	bus.current, bus.next = bus.next, nil
	bus.drained = common.StringSet{}
	bus.lock.Unlock()
}

// MemoryEngine is a headless Engine
type MemoryEngine struct {
	scenes       []*MemoryScene
	bus          *MemoryBus
	tickRate     int
	frame        int
	nextObjectID common.ObjectID
}

// NewMemoryEngine creates an engine running at tickRate logic frames per second
func NewMemoryEngine(tickRate int) *MemoryEngine {
	return &MemoryEngine{
		bus:      NewMemoryBus(),
		tickRate: tickRate,
	}
}

// AddScene adds an empty scene
func (e *MemoryEngine) AddScene(name string) *MemoryScene {
	scene := &MemoryScene{engine: e, name: name}
	e.scenes = append(e.scenes, scene)
	return scene
}

// Scenes returns all scenes
func (e *MemoryEngine) Scenes() []Scene {
	scenes := make([]Scene, len(e.scenes))
	for i, s := range e.scenes {
		scenes[i] = s
	}
	return scenes
}

// Scene returns the scene with the name, or nil
func (e *MemoryEngine) Scene(name string) Scene {
	if s := e.MemoryScene(name); s != nil {
		return s
	}
	return nil
}

// MemoryScene returns the scene with the name, or nil
func (e *MemoryEngine) MemoryScene(name string) *MemoryScene {
	for _, s := range e.scenes {
		if s.name == name {
			return s
		}
	}
	return nil
}

// Bus returns the message bus
func (e *MemoryEngine) Bus() Bus {
	return e.bus
}

// MemoryBus returns the message bus
func (e *MemoryEngine) MemoryBus() *MemoryBus {
	return e.bus
}

// NextFrame delivers the messages sent during the last frame and removes ended objects
func (e *MemoryEngine) NextFrame() {
	e.frame++
	for _, s := range e.scenes {
		s.removeEnded()
	}
	e.bus.swap()
}

// Frame returns the number of frames run
func (e *MemoryEngine) Frame() int {
	return e.frame
}

// LogicTickRate returns the logic frames per second
func (e *MemoryEngine) LogicTickRate() int {
	return e.tickRate
}

func (e *MemoryEngine) genObjectID() common.ObjectID {
	e.nextObjectID++
	return e.nextObjectID
}

// MemoryScene is a Scene of MemoryEngine
type MemoryScene struct {
	engine   *MemoryEngine
	name     string
	objects  []*MemoryObject
	inactive []*MemoryObject
}

// Name returns the scene name
func (s *MemoryScene) Name() string {
	return s.name
}

// Objects returns the active objects
func (s *MemoryScene) Objects() []Object {
	return toObjects(s.objects)
}

// InactiveObjects returns the objects that can be added by name
func (s *MemoryScene) InactiveObjects() []Object {
	return toObjects(s.inactive)
}

func toObjects(objs []*MemoryObject) []Object {
	res := make([]Object, len(objs))
	for i, obj := range objs {
		res[i] = obj
	}
	return res
}

// Spawn places a new active object in the scene
func (s *MemoryScene) Spawn(name string) *MemoryObject {
	obj := newMemoryObject(s, name)
	s.objects = append(s.objects, obj)
	return obj
}

// AddInactive places a new inactive object in the scene, which AddObject copies
func (s *MemoryScene) AddInactive(name string) *MemoryObject {
	obj := newMemoryObject(s, name)
	s.inactive = append(s.inactive, obj)
	return obj
}

// AddObject spawns a copy of the inactive object with the name
func (s *MemoryScene) AddObject(name string) (Object, error) {
	for _, tmpl := range s.inactive {
		if tmpl.name == name {
			obj := tmpl.clone()
			s.objects = append(s.objects, obj)
			return obj, nil
		}
	}
	return nil, errors.Errorf("scene %s has no inactive object %s", s.name, name)
}

// Object returns the first active object with the name, or nil
func (s *MemoryScene) Object(name string) *MemoryObject {
	for _, obj := range s.objects {
		if obj.name == name {
			return obj
		}
	}
	return nil
}

func (s *MemoryScene) removeEnded() {
	alive := s.objects[:0]
	for _, obj := range s.objects {
		if obj.ended {
			obj.invalid = true
		} else {
			alive = append(alive, obj)
		}
	}
	for i := len(alive); i < len(s.objects); i++ {
		s.objects[i] = nil
	}
	s.objects = alive
}

// MemoryObject is an Object of MemoryScene
type MemoryObject struct {
	scene            *MemoryScene
	id               common.ObjectID
	name             string
	props            map[string]interface{}
	state            uint32
	controllerStates uint32
	sensors          []*MessageBrick
	actuators        []*MessageBrick
	ended            bool
	invalid          bool
}

func newMemoryObject(scene *MemoryScene, name string) *MemoryObject {
	return &MemoryObject{
		scene: scene,
		id:    scene.engine.genObjectID(),
		name:  name,
		props: map[string]interface{}{},
		state: 1,
	}
}

func (obj *MemoryObject) clone() *MemoryObject {
	c := newMemoryObject(obj.scene, obj.name)
	for k, v := range obj.props {
		c.props[k] = v
	}
	c.state = obj.state
	c.controllerStates = obj.controllerStates
	for _, b := range obj.sensors {
		c.sensors = append(c.sensors, &MessageBrick{Subject: b.Subject})
	}
	for _, b := range obj.actuators {
		c.actuators = append(c.actuators, &MessageBrick{Subject: b.Subject})
	}
	return c
}

func (obj *MemoryObject) String() string {
	return "MemoryObject<" + obj.name + "#" + obj.id.String() + ">"
}

// ID returns the object id
func (obj *MemoryObject) ID() common.ObjectID {
	return obj.id
}

// Name returns the object name
func (obj *MemoryObject) Name() string {
	return obj.name
}

// Scene returns the scene of the object
func (obj *MemoryObject) Scene() Scene {
	return obj.scene
}

// Invalid returns if the object was removed
func (obj *MemoryObject) Invalid() bool {
	return obj.invalid
}

// End removes the object at the next frame
func (obj *MemoryObject) End() {
	obj.ended = true
}

// Property returns the property value
func (obj *MemoryObject) Property(name string) (interface{}, bool) {
	v, ok := obj.props[name]
	return v, ok
}

// SetProperty sets the property value
func (obj *MemoryObject) SetProperty(name string, val interface{}) {
	obj.props[name] = val
}

// PropertyNames returns the sorted property names
func (obj *MemoryObject) PropertyNames() []string {
	names := make([]string, 0, len(obj.props))
	for name := range obj.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// State returns the active state mask
func (obj *MemoryObject) State() uint32 {
	return obj.state
}

// SetState sets the active state mask
func (obj *MemoryObject) SetState(state uint32) {
	obj.state = state
}

// ControllerStates returns the states used by the object's controllers
func (obj *MemoryObject) ControllerStates() uint32 {
	return obj.controllerStates
}

// SetControllerStates sets the states used by the object's controllers
func (obj *MemoryObject) SetControllerStates(states uint32) {
	obj.controllerStates = states
}

// AddSensor adds a message sensor listening to subject
func (obj *MemoryObject) AddSensor(subject string) *MessageBrick {
	b := &MessageBrick{Subject: subject}
	obj.sensors = append(obj.sensors, b)
	return b
}

// AddActuator adds a message actuator sending subject
func (obj *MemoryObject) AddActuator(subject string) *MessageBrick {
	b := &MessageBrick{Subject: subject}
	obj.actuators = append(obj.actuators, b)
	return b
}

// MessageSensors returns the message sensors
func (obj *MemoryObject) MessageSensors() []*MessageBrick {
	return obj.sensors
}

// MessageActuators returns the message actuators
func (obj *MemoryObject) MessageActuators() []*MessageBrick {
	return obj.actuators
}

// SendMessage sends a message on the bus
func (obj *MemoryObject) SendMessage(subject string, body string, to string) {
	obj.scene.engine.bus.Send(Message{Subject: subject, Body: body, To: to, From: obj.id})
}

// Fire sends the subject of the actuator
func (obj *MemoryObject) Fire(actuator *MessageBrick, body string) {
	obj.SendMessage(actuator.Subject, body, "")
}

// Received returns the subjects of current frame messages matching one of the object's sensors
func (obj *MemoryObject) Received() []string {
	var res []string
	for _, msg := range obj.scene.engine.bus.Current() {
		if msg.To != "" && msg.To != obj.name {
			continue
		}
		for _, sensor := range obj.sensors {
			if sensor.Subject == msg.Subject {
				res = append(res, msg.Subject)
				break
			}
		}
	}
	return res
}
