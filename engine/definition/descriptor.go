// Package definition loads entity descriptors and templates from the resource store.
//
// Descriptor files are authored with display-layer names (mode, role and type names). They are converted to the
// internal enumerations here, so no other package sees the authored strings.
package definition

import (
	"sort"

	"github.com/netbricks/netbricks/engine/replication"
	"github.com/netbricks/netbricks/engine/statemask"
)

// Attribute describes one replicated attribute
type Attribute struct {
	Name        string
	Type        ValueType
	Default     interface{}
	Notify      bool // emit a notification when the value arrives by replication
	InitialOnly bool // replicate only with the first full synchronization
	IgnoreOwner bool // never replicate to the owning side
}

// Argument is one declared RPC argument
type Argument struct {
	Name string
	Type ValueType
}

// RPC describes one remotely invokable method
type RPC struct {
	Name      string
	Arguments []Argument // in authored order
	Reliable  bool
	Simulated bool
	Target    replication.NetMode
}

// SortedArguments returns the arguments sorted by name
func (rpc *RPC) SortedArguments() []Argument {
	args := make([]Argument, len(rpc.Arguments))
	copy(args, rpc.Arguments)
	sort.Slice(args, func(i, j int) bool {
		return args[i].Name < args[j].Name
	})
	return args
}

// Descriptor is the immutable configuration of one entity type
type Descriptor struct {
	Name       string
	ObjectName string // host object name from definition.cfg
	Attributes []*Attribute
	RPCs       []*RPC
	Templates  []string // base templates, most derived first
	Defaults   map[string]interface{}
	StateMasks map[replication.NetMode]statemask.Masks
	RemoteRole replication.Role
}

// Attribute returns the attribute with the name, or nil
func (desc *Descriptor) Attribute(name string) *Attribute {
	for _, attr := range desc.Attributes {
		if attr.Name == name {
			return attr
		}
	}
	return nil
}

// RPC returns the RPC with the name, or nil
func (desc *Descriptor) RPC(name string) *RPC {
	for _, rpc := range desc.RPCs {
		if rpc.Name == name {
			return rpc
		}
	}
	return nil
}

// Template is a reusable set of attributes, RPCs and defaults that descriptors inherit from
type Template struct {
	Name       string
	Bases      []string
	Attributes []*Attribute
	RPCs       []*RPC
	Defaults   map[string]interface{}
}
