package netbricks

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/netbricks/netbricks/engine/consts"
	"github.com/netbricks/netbricks/engine/host"
	"github.com/netbricks/netbricks/engine/replication"
)

func writeDataFile(t *testing.T, path string, content string) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestNewBridge(t *testing.T) {
	dir, err := ioutil.TempDir("", "netbricks")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	writeDataFile(t, filepath.Join(dir, consts.MAIN_DEFINITION_FILE), `{"port": 1250, "tick_rate": 20}`)
	writeDataFile(t, filepath.Join(dir, "Player", consts.ACTOR_DEFINITION_FILE), `{"attributes": {"score": {"default": 0}}}`)
	writeDataFile(t, filepath.Join(dir, "Player", consts.OBJECT_SETTINGS_FILE), "[BGE]\nobject_name = PlayerMesh\n")

	engine := host.NewMemoryEngine(60)
	scene := engine.AddScene("Scene")
	mesh := scene.Spawn("PlayerMesh")
	bridge, err := NewBridge(engine, dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer bridge.Close()
	assert.Equal(t, 1250, bridge.Config().Main.Port)

	if err := bridge.SetNetMode(replication.NetModeServer); err != nil {
		t.Fatal(err)
	}
	e := bridge.Registry().Lookup(mesh)
	assert.T(t, e != nil, "PlayerMesh should be bound to Player")
	assert.Equal(t, "Player", e.TypeName)

	writeDataFile(t, filepath.Join(dir, consts.MAIN_DEFINITION_FILE), `{"port": 0}`)
	_, err = NewBridge(engine, dir, nil)
	assert.T(t, err != nil)
}

func TestSchemas(t *testing.T) {
	data, err := DescriptorSchema()
	assert.Equal(t, nil, err)
	assert.T(t, strings.Contains(string(data), "rpc_calls"))

	data, err = TemplateSchema()
	assert.Equal(t, nil, err)
	assert.T(t, strings.Contains(string(data), "bases"))
}
