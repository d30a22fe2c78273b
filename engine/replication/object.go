package replication

import (
	"fmt"

	"github.com/netbricks/netbricks/engine/common"
)

// RolesAttribute is the name of the always-replicated roles attribute
const RolesAttribute = "roles"

// Class describes the replicated shape shared by all objects of one type
type Class interface {
	// Name returns the type name, which must be the same on all peers
	Name() string
	// AttributeNames returns the replicated attribute names in declaration order
	AttributeNames() []string
	// CanReplicate returns the attribute names to send to one connection
	CanReplicate(isOwner bool, isInitial bool) []string
	// ConvertAttribute converts a received value to the attribute type
	ConvertAttribute(name string, value interface{}) (interface{}, error)
	// ConvertArguments converts received RPC arguments to the declared argument types
	ConvertArguments(rpc string, args []interface{}) ([]interface{}, error)
}

// Object is one networked replicable
type Object struct {
	id         uint64
	scene      string
	class      Class
	roles      Roles
	attrs      map[string]interface{}
	dirty      common.StringSet
	owner      *Controller
	registered bool

	// OnReplicated is called after an attribute value arrived from the network
	OnReplicated func(name string)
	// OnInvoke is called when an RPC arrives for the object
	OnInvoke func(rpc string, args []interface{})
}

// NewObject creates an unregistered object
func NewObject(class Class, scene string, roles Roles) *Object {
	return &Object{
		scene: scene,
		class: class,
		roles: roles,
		attrs: map[string]interface{}{},
		dirty: common.StringSet{},
	}
}

func (obj *Object) String() string {
	return fmt.Sprintf("%s<%s#%d>", obj.class.Name(), obj.scene, obj.id)
}

// ID returns the unique id of the object within its scene
func (obj *Object) ID() uint64 {
	return obj.id
}

// Scene returns the scene name of the object
func (obj *Object) Scene() string {
	return obj.scene
}

// Class returns the class of the object
func (obj *Object) Class() Class {
	return obj.class
}

// Roles returns the local and remote role of the object
func (obj *Object) Roles() Roles {
	return obj.roles
}

// SetRoles sets the roles
func (obj *Object) SetRoles(roles Roles) {
	if obj.roles != roles {
		obj.roles = roles
		obj.dirty.Add(RolesAttribute)
	}
}

// Registered returns if the object is registered to a service
func (obj *Object) Registered() bool {
	return obj.registered
}

// Owner returns the controller owning the object, or nil
func (obj *Object) Owner() *Controller {
	return obj.owner
}

// Get returns the attribute value
func (obj *Object) Get(name string) interface{} {
	if name == RolesAttribute {
		return obj.roles
	}
	return obj.attrs[name]
}

// Set sets the attribute value, marking it dirty if it changed
func (obj *Object) Set(name string, val interface{}) {
	if old, ok := obj.attrs[name]; ok && old == val {
		return
	}
	obj.attrs[name] = val
	obj.dirty.Add(name)
}

// IsDirty returns if the attribute changed since the last ClearDirty
func (obj *Object) IsDirty(name string) bool {
	return obj.dirty.Contains(name)
}

// ClearDirty forgets all attribute changes
func (obj *Object) ClearDirty() {
	obj.dirty = common.StringSet{}
}

// setReplicated stores a value received from the network and returns if it changed
func (obj *Object) setReplicated(name string, val interface{}) bool {
	if old, ok := obj.attrs[name]; ok && old == val {
		return false
	}
	obj.attrs[name] = val
	return true
}

func (obj *Object) replicated(name string) {
	if obj.OnReplicated != nil {
		obj.OnReplicated(name)
	}
}

func (obj *Object) invoked(rpc string, args []interface{}) {
	if obj.OnInvoke != nil {
		obj.OnInvoke(rpc, args)
	}
}

// Controller controls a pawn on behalf of one connection
type Controller struct {
	connID common.ConnectionID
	pawn   *Object
}

// NewController creates a controller for the connection
func NewController(connID common.ConnectionID) *Controller {
	return &Controller{connID: connID}
}

func (c *Controller) String() string {
	return fmt.Sprintf("Controller<%d>", c.connID)
}

// ConnectionID returns the connection the controller belongs to
func (c *Controller) ConnectionID() common.ConnectionID {
	return c.connID
}

// Pawn returns the controlled object, or nil
func (c *Controller) Pawn() *Object {
	return c.pawn
}

// TakeControl makes the controller own pawn, releasing any previous pawn
func (c *Controller) TakeControl(pawn *Object) {
	if c.pawn == pawn {
		return
	}
	c.ReleaseControl()
	if pawn.owner != nil {
		pawn.owner.ReleaseControl()
	}
	c.pawn = pawn
	pawn.owner = c
}

// ReleaseControl releases the current pawn
func (c *Controller) ReleaseControl() {
	if c.pawn == nil {
		return
	}
	c.pawn.owner = nil
	c.pawn = nil
}
