package entity

import (
	"github.com/netbricks/netbricks/engine/common"
	"github.com/netbricks/netbricks/engine/definition"
	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/netbricks/netbricks/engine/replication"
	"github.com/netbricks/netbricks/engine/statemask"
	"github.com/pkg/errors"
)

// replicationGroup is the set of attributes sharing the same replication condition
type replicationGroup struct {
	initialOnly bool
	ignoreOwner bool
	names       []string
}

func (g *replicationGroup) matches(isOwner bool, isInitial bool) bool {
	if g.initialOnly && !isInitial {
		return false
	}
	if g.ignoreOwner && isOwner {
		return false
	}
	return true
}

// EntityType is the synthesized class of one descriptor
//
// It merges the attributes, RPCs and defaults of the descriptor's templates (base-most first) with the descriptor's
// own, and implements replication.Class.
type EntityType struct {
	name       string
	desc       *definition.Descriptor
	mro        []string
	attrs      []*definition.Attribute
	attrIndex  map[string]*definition.Attribute
	rpcDescs   rpcDescMap
	groups     []*replicationGroup
	defaults   map[string]interface{}
	properties common.StringSet // names mirrored to host properties
}

var _ replication.Class = (*EntityType)(nil)

func newEntityType(desc *definition.Descriptor, mro []string) *EntityType {
	return &EntityType{
		name:       desc.Name,
		desc:       desc,
		mro:        mro,
		attrIndex:  map[string]*definition.Attribute{},
		rpcDescs:   rpcDescMap{},
		defaults:   map[string]interface{}{},
		properties: common.StringSet{},
	}
}

func (et *EntityType) String() string {
	return "EntityType<" + et.name + ">"
}

// merge layers attributes, RPCs and defaults over the ones merged so far
func (et *EntityType) merge(attrs []*definition.Attribute, rpcs []*definition.RPC, defaults map[string]interface{}) {
	for _, attr := range attrs {
		copied := *attr
		if old, ok := et.attrIndex[attr.Name]; ok {
			*old = copied
			continue
		}
		et.attrs = append(et.attrs, &copied)
		et.attrIndex[attr.Name] = &copied
	}
	for _, rpc := range rpcs {
		et.rpcDescs.visit(rpc)
	}
	for name, val := range defaults {
		et.defaults[name] = val
	}
}

// finish applies defaults and groups attributes by replication condition
func (et *EntityType) finish() error {
	for name, val := range et.defaults {
		attr := et.attrIndex[name]
		if attr == nil {
			gwlog.Debugf("%s: default %s is not a replicated attribute", et, name)
			continue
		}
		v, err := attr.Type.Coerce(val)
		if err != nil {
			return errors.WithMessagef(err, "%s: default of %s", et, name)
		}
		attr.Default = v
		et.defaults[name] = v
	}

	for _, attr := range et.attrs {
		if attr.Default == nil {
			attr.Default = attr.Type.Zero()
		}
		et.properties.Add(attr.Name)
		g := et.groupOf(attr.InitialOnly, attr.IgnoreOwner)
		g.names = append(g.names, attr.Name)
	}
	return nil
}

func (et *EntityType) groupOf(initialOnly bool, ignoreOwner bool) *replicationGroup {
	for _, g := range et.groups {
		if g.initialOnly == initialOnly && g.ignoreOwner == ignoreOwner {
			return g
		}
	}
	g := &replicationGroup{initialOnly: initialOnly, ignoreOwner: ignoreOwner}
	et.groups = append(et.groups, g)
	return g
}

// Name returns the type name
func (et *EntityType) Name() string {
	return et.name
}

// Descriptor returns the descriptor the type was synthesized from
func (et *EntityType) Descriptor() *definition.Descriptor {
	return et.desc
}

// MRO returns the templates the type resolves through, most derived first
func (et *EntityType) MRO() []string {
	return et.mro
}

// Attribute returns the merged attribute with the name, or nil
func (et *EntityType) Attribute(name string) *definition.Attribute {
	return et.attrIndex[name]
}

// Default returns the default value of an attribute or extra host property
func (et *EntityType) Default(name string) (interface{}, bool) {
	v, ok := et.defaults[name]
	return v, ok
}

// AttributeNames returns the replicated attribute names in declaration order
func (et *EntityType) AttributeNames() []string {
	names := make([]string, 0, len(et.attrs))
	for _, attr := range et.attrs {
		names = append(names, attr.Name)
	}
	return names
}

// CanReplicate returns the attribute names to replicate to one connection; roles is always included
func (et *EntityType) CanReplicate(isOwner bool, isInitial bool) []string {
	names := []string{replication.RolesAttribute}
	for _, g := range et.groups {
		if g.matches(isOwner, isInitial) {
			names = append(names, g.names...)
		}
	}
	return names
}

// ConvertAttribute converts a received value to the attribute type
func (et *EntityType) ConvertAttribute(name string, value interface{}) (interface{}, error) {
	attr := et.attrIndex[name]
	if attr == nil {
		return nil, errors.Errorf("%s has no attribute %s", et, name)
	}
	return attr.Type.Coerce(value)
}

// ConvertArguments converts received RPC arguments, ordered by argument name
func (et *EntityType) ConvertArguments(rpc string, args []interface{}) ([]interface{}, error) {
	rd := et.rpcDescs[rpc]
	if rd == nil {
		return nil, errors.Wrapf(ErrUnknownRPC, "%s.%s", et.name, rpc)
	}
	return rd.convertArgs(args)
}

// RPCNames returns the RPC names, sorted
func (et *EntityType) RPCNames() []string {
	return et.rpcDescs.names()
}

// RPCArgumentNames returns the argument names of the RPC in wire order
func (et *EntityType) RPCArgumentNames(rpc string) ([]string, bool) {
	rd := et.rpcDescs[rpc]
	if rd == nil {
		return nil, false
	}
	return rd.ArgNames, true
}

// StateMasks returns the authored behavior state masks
func (et *EntityType) StateMasks() map[replication.NetMode]statemask.Masks {
	return et.desc.StateMasks
}
