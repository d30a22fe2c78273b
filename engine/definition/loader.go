package definition

import (
	"bytes"
	"encoding/json"

	"github.com/go-ini/ini"
	"github.com/iancoleman/orderedmap"
	"github.com/netbricks/netbricks/engine/consts"
	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/netbricks/netbricks/engine/replication"
	"github.com/netbricks/netbricks/engine/resource"
	"github.com/netbricks/netbricks/engine/statemask"
	"github.com/pkg/errors"
)

const (
	_RESERVED_ROLES_ATTR  = "roles"
	_DEFAULT_REMOTE_ROLE  = replication.RoleSimulatedProxy
	_OBJECT_SETTINGS_SECT = "BGE"
)

var (
	// ErrDescriptorNotFound means the name is not a network-enabled entity type
	ErrDescriptorNotFound = errors.New("descriptor not found")
	// ErrTemplateNotFound means no template file exists for the name
	ErrTemplateNotFound = errors.New("template not found")
	// ErrInvalidDescriptor is the cause of every malformed descriptor or template error
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)

// Loader reads descriptors and templates from a resource store
type Loader struct {
	store resource.Store
}

// NewLoader creates a loader reading from store
func NewLoader(store resource.Store) *Loader {
	return &Loader{store: store}
}

// Store returns the resource store of the loader
func (l *Loader) Store() resource.Store {
	return l.store
}

// Names returns the names of all entity types that have a descriptor
func (l *Loader) Names() ([]string, error) {
	return l.store.List(consts.ACTOR_DEFINITION_FILE)
}

// Load reads the descriptor of entity type name
func (l *Loader) Load(name string) (*Descriptor, error) {
	data, err := l.store.Open(name, consts.ACTOR_DEFINITION_FILE)
	if errors.Cause(err) == resource.ErrNotFound {
		return nil, errors.Wrapf(ErrDescriptorNotFound, "%s", name)
	} else if err != nil {
		return nil, err
	}

	desc, err := ParseDescriptor(name, data)
	if err != nil {
		return nil, err
	}

	desc.ObjectName, err = l.readObjectName(name)
	if err != nil {
		return nil, err
	}
	return desc, nil
}

// LoadTemplate reads the template with the name
func (l *Loader) LoadTemplate(name string) (*Template, error) {
	data, err := l.store.Open(consts.TEMPLATE_DIR, name+consts.TEMPLATE_FILE_EXT)
	if errors.Cause(err) == resource.ErrNotFound {
		return nil, errors.Wrapf(ErrTemplateNotFound, "%s", name)
	} else if err != nil {
		return nil, err
	}
	return ParseTemplate(name, data)
}

func (l *Loader) readObjectName(name string) (string, error) {
	data, err := l.store.Open(name, consts.OBJECT_SETTINGS_FILE)
	if errors.Cause(err) == resource.ErrNotFound {
		return name, nil
	} else if err != nil {
		return "", err
	}

	settings, err := ini.Load(data)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidDescriptor, "%s/%s: %v", name, consts.OBJECT_SETTINGS_FILE, err)
	}
	return settings.Section(_OBJECT_SETTINGS_SECT).Key("object_name").MustString(name), nil
}

type keyOrder struct {
	Attributes json.RawMessage `json:"attributes"`
	RPCCalls   json.RawMessage `json:"rpc_calls"`
}

type rpcKeyOrder struct {
	Arguments json.RawMessage `json:"arguments"`
}

// ParseDescriptor parses the content of an actor.definition file
func ParseDescriptor(name string, data []byte) (*Descriptor, error) {
	var file File
	var order keyOrder
	if err := decodeJSON(data, &file); err != nil {
		return nil, errors.Wrapf(ErrInvalidDescriptor, "%s: %v", name, err)
	}
	if err := decodeJSON(data, &order); err != nil {
		return nil, errors.Wrapf(ErrInvalidDescriptor, "%s: %v", name, err)
	}

	desc := &Descriptor{
		Name:       name,
		ObjectName: name,
		Templates:  file.Templates,
		Defaults:   normalizeValues(file.Defaults),
		StateMasks: map[replication.NetMode]statemask.Masks{},
		RemoteRole: _DEFAULT_REMOTE_ROLE,
	}

	var err error
	if desc.Attributes, err = parseAttributes(name, order.Attributes, file.Attributes); err != nil {
		return nil, err
	}
	if desc.RPCs, err = parseRPCs(name, order.RPCCalls, file.RPCCalls); err != nil {
		return nil, err
	}

	simulated, err := statemask.FromBools(file.SimulatedStates)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidDescriptor, "%s: simulated_states: %v", name, err)
	}
	for modeName, flags := range file.States {
		mode, err := replication.ParseNetMode(modeName)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidDescriptor, "%s: states: %v", name, err)
		}
		active, err := statemask.FromBools(flags)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidDescriptor, "%s: states of %s: %v", name, mode, err)
		}
		desc.StateMasks[mode] = statemask.Masks{Active: active, Simulated: simulated}
	}

	if file.RemoteRole != "" {
		if desc.RemoteRole, err = replication.ParseRole(file.RemoteRole); err != nil {
			return nil, errors.Wrapf(ErrInvalidDescriptor, "%s: remote_role: %v", name, err)
		}
	}
	return desc, nil
}

// ParseTemplate parses the content of a template file
func ParseTemplate(name string, data []byte) (*Template, error) {
	var file TemplateFile
	var order keyOrder
	if err := decodeJSON(data, &file); err != nil {
		return nil, errors.Wrapf(ErrInvalidDescriptor, "template %s: %v", name, err)
	}
	if err := decodeJSON(data, &order); err != nil {
		return nil, errors.Wrapf(ErrInvalidDescriptor, "template %s: %v", name, err)
	}

	tmpl := &Template{
		Name:     name,
		Bases:    file.Bases,
		Defaults: normalizeValues(file.Defaults),
	}
	var err error
	if tmpl.Attributes, err = parseAttributes(name, order.Attributes, file.Attributes); err != nil {
		return nil, err
	}
	if tmpl.RPCs, err = parseRPCs(name, order.RPCCalls, file.RPCCalls); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func parseAttributes(owner string, raw json.RawMessage, files map[string]AttributeFile) ([]*Attribute, error) {
	names, err := orderedKeys(raw)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidDescriptor, "%s: attributes: %v", owner, err)
	}

	attrs := make([]*Attribute, 0, len(names))
	for _, attrName := range names {
		if attrName == _RESERVED_ROLES_ATTR {
			return nil, errors.Wrapf(ErrInvalidDescriptor, "%s: attribute name %q is reserved", owner, attrName)
		}
		af := files[attrName]

		var vt ValueType
		if af.Type != "" {
			if vt, err = ParseValueType(af.Type); err != nil {
				return nil, errors.Wrapf(ErrInvalidDescriptor, "%s.%s: %v", owner, attrName, err)
			}
		} else if t, ok := InferValueType(af.Default); ok {
			vt = t
		} else {
			return nil, errors.Wrapf(ErrInvalidDescriptor, "%s.%s: cannot infer type of default %v", owner, attrName, af.Default)
		}

		def, err := vt.Coerce(af.Default)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidDescriptor, "%s.%s: default: %v", owner, attrName, err)
		}

		notify := true
		if af.Notify != nil {
			notify = *af.Notify
		}
		attrs = append(attrs, &Attribute{
			Name:        attrName,
			Type:        vt,
			Default:     def,
			Notify:      notify,
			InitialOnly: af.InitialOnly,
			IgnoreOwner: af.IgnoreOwner,
		})
	}
	return attrs, nil
}

func parseRPCs(owner string, raw json.RawMessage, files map[string]RPCFile) ([]*RPC, error) {
	names, err := orderedKeys(raw)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidDescriptor, "%s: rpc_calls: %v", owner, err)
	}
	var argOrders map[string]rpcKeyOrder
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &argOrders); err != nil {
			return nil, errors.Wrapf(ErrInvalidDescriptor, "%s: rpc_calls: %v", owner, err)
		}
	}

	rpcs := make([]*RPC, 0, len(names))
	for _, rpcName := range names {
		rf := files[rpcName]
		target, err := replication.ParseNetMode(rf.Target)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidDescriptor, "%s.%s: target: %v", owner, rpcName, err)
		}

		argNames, err := orderedKeys(argOrders[rpcName].Arguments)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidDescriptor, "%s.%s: arguments: %v", owner, rpcName, err)
		}
		rpc := &RPC{
			Name:      rpcName,
			Arguments: make([]Argument, 0, len(argNames)),
			Reliable:  rf.Reliable,
			Simulated: rf.Simulated,
			Target:    target,
		}
		for _, argName := range argNames {
			vt, err := ParseValueType(rf.Arguments[argName])
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidDescriptor, "%s.%s(%s): %v", owner, rpcName, argName, err)
			}
			rpc.Arguments = append(rpc.Arguments, Argument{Name: argName, Type: vt})
		}
		rpcs = append(rpcs, rpc)
	}
	return rpcs, nil
}

// orderedKeys returns the keys of a JSON object in document order
func orderedKeys(raw json.RawMessage) ([]string, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, nil
	}
	om := orderedmap.New()
	if err := json.Unmarshal(raw, om); err != nil {
		return nil, err
	}
	return om.Keys(), nil
}

func decodeJSON(data []byte, v interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	return decoder.Decode(v)
}

func normalizeValues(values map[string]interface{}) map[string]interface{} {
	res := make(map[string]interface{}, len(values))
	for k, v := range values {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				v = i
			} else if f, err := n.Float64(); err == nil {
				v = f
			} else {
				gwlog.Warnf("default %s: invalid number %s", k, n)
				continue
			}
		}
		res[k] = v
	}
	return res
}
