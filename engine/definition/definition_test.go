package definition

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/netbricks/netbricks/engine/consts"
	"github.com/netbricks/netbricks/engine/replication"
	"github.com/netbricks/netbricks/engine/resource"
	"github.com/pkg/errors"
)

const playerDefinition = `{
	"attributes": {
		"score": {"default": 0, "initial_only": false, "ignore_owner": false},
		"health": {"default": 100.0, "initial_only": false, "ignore_owner": true},
		"alias": {"default": "", "initial_only": true, "ignore_owner": false},
		"alive": {"default": true, "initial_only": false, "ignore_owner": false, "notify": false}
	},
	"rpc_calls": {
		"ping": {"arguments": {}, "target": "SERVER", "reliable": false, "simulated": false},
		"move": {"arguments": {"z": "FLOAT", "x": "FLOAT", "jump": "BOOL"}, "target": "CLIENT", "reliable": true, "simulated": true}
	},
	"templates": ["Pawn"],
	"defaults": {"speed": 3},
	"states": {"SERVER": [true], "CLIENT": [false, true, false, true]},
	"simulated_states": [false, false, false, true],
	"remote_role": "SIMULATED_PROXY"
}`

func TestParseDescriptor(t *testing.T) {
	desc, err := ParseDescriptor("Player", []byte(playerDefinition))
	if err != nil {
		t.Fatal(err)
	}

	names := []string{}
	for _, attr := range desc.Attributes {
		names = append(names, attr.Name)
	}
	assert.Equal(t, []string{"score", "health", "alias", "alive"}, names)

	score := desc.Attribute("score")
	assert.Equal(t, TypeInt, score.Type)
	assert.Equal(t, int64(0), score.Default)
	assert.T(t, score.Notify)
	assert.Equal(t, TypeFloat, desc.Attribute("health").Type)
	assert.T(t, desc.Attribute("health").IgnoreOwner)
	assert.T(t, desc.Attribute("alias").InitialOnly)
	assert.T(t, !desc.Attribute("alive").Notify)
	assert.T(t, desc.Attribute("nope") == nil)

	assert.Equal(t, "ping", desc.RPCs[0].Name)
	move := desc.RPC("move")
	assert.Equal(t, []Argument{{"z", TypeFloat}, {"x", TypeFloat}, {"jump", TypeBool}}, move.Arguments)
	assert.Equal(t, []Argument{{"jump", TypeBool}, {"x", TypeFloat}, {"z", TypeFloat}}, move.SortedArguments())
	assert.Equal(t, replication.NetModeClient, move.Target)
	assert.T(t, move.Reliable && move.Simulated)
	assert.Equal(t, replication.NetModeServer, desc.RPC("ping").Target)

	assert.Equal(t, []string{"Pawn"}, desc.Templates)
	assert.Equal(t, int64(3), desc.Defaults["speed"])
	assert.Equal(t, replication.RoleSimulatedProxy, desc.RemoteRole)

	assert.Equal(t, uint32(1), desc.StateMasks[replication.NetModeServer].Active)
	assert.Equal(t, uint32(1<<1|1<<3), desc.StateMasks[replication.NetModeClient].Active)
	assert.Equal(t, uint32(1<<3), desc.StateMasks[replication.NetModeClient].Simulated)
}

func TestParseDescriptorErrors(t *testing.T) {
	for _, data := range []string{
		`{"attributes": `,
		`{"attributes": {"roles": {"default": 0}}}`,
		`{"attributes": {"x": {"default": null}}}`,
		`{"attributes": {"x": {"default": "a", "type": "INT"}}}`,
		`{"rpc_calls": {"f": {"arguments": {}, "target": "NOWHERE"}}}`,
		`{"rpc_calls": {"f": {"arguments": {"a": "VECTOR"}, "target": "SERVER"}}}`,
		`{"states": {"LISTEN": []}}`,
		`{"remote_role": "king"}`,
	} {
		_, err := ParseDescriptor("Bad", []byte(data))
		assert.Equalf(t, ErrInvalidDescriptor, errors.Cause(err), "%s", data)
	}
}

func TestValueTypeCoerce(t *testing.T) {
	v, err := TypeFloat.Coerce(json.Number("3"))
	assert.Equal(t, nil, err)
	assert.Equal(t, float64(3), v)

	v, err = TypeInt.Coerce(2.0)
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(2), v)

	v, err = TypeBool.Coerce(int64(1))
	assert.Equal(t, nil, err)
	assert.Equal(t, true, v)

	v, err = TypeString.Coerce(nil)
	assert.Equal(t, nil, err)
	assert.Equal(t, "", v)

	_, err = TypeString.Coerce(5)
	assert.T(t, err != nil)
	_, err = TypeInt.Coerce("5")
	assert.T(t, err != nil)

	vt, err := ParseValueType("timer")
	assert.Equal(t, nil, err)
	assert.Equal(t, TypeFloat, vt)
}

func TestLoader(t *testing.T) {
	store := resource.NewMemoryStore()
	store.Put("Player", consts.ACTOR_DEFINITION_FILE, []byte(playerDefinition))
	store.Put("Player", consts.OBJECT_SETTINGS_FILE, []byte("[BGE]\nobject_name = PlayerMesh\n"))
	store.Put("Crate", consts.ACTOR_DEFINITION_FILE, []byte(`{"remote_role": "DUMB_PROXY"}`))
	store.Put(consts.TEMPLATE_DIR, "Pawn"+consts.TEMPLATE_FILE_EXT, []byte(`{
		"bases": ["Actor"],
		"attributes": {"speed": {"default": 1.5}},
		"rpc_calls": {"jump": {"arguments": {}, "target": "SERVER", "reliable": true}}
	}`))

	loader := NewLoader(store)
	names, err := loader.Names()
	assert.Equal(t, nil, err)
	assert.Equal(t, []string{"Crate", "Player"}, names)

	desc, err := loader.Load("Player")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "PlayerMesh", desc.ObjectName)

	crate, err := loader.Load("Crate")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "Crate", crate.ObjectName)
	assert.Equal(t, replication.RoleDumbProxy, crate.RemoteRole)
	assert.Equal(t, 0, len(crate.Attributes))

	_, err = loader.Load("Tree")
	assert.Equal(t, ErrDescriptorNotFound, errors.Cause(err))

	tmpl, err := loader.LoadTemplate("Pawn")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []string{"Actor"}, tmpl.Bases)
	assert.Equal(t, TypeFloat, tmpl.Attributes[0].Type)
	assert.Equal(t, "jump", tmpl.RPCs[0].Name)

	_, err = loader.LoadTemplate("Ghost")
	assert.Equal(t, ErrTemplateNotFound, errors.Cause(err))
}

func TestSchema(t *testing.T) {
	data, err := json.Marshal(Schema())
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"attributes", "rpc_calls", "simulated_states", "remote_role", "initial_only"} {
		assert.Tf(t, strings.Contains(string(data), field), "schema misses %s", field)
	}

	data, err = json.Marshal(TemplateSchema())
	if err != nil {
		t.Fatal(err)
	}
	assert.T(t, strings.Contains(string(data), "bases"))
}
