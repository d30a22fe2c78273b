package resource

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
)

func makeStoreDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "netbricks_resource")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	for name, content := range map[string]string{
		"Player/actor.definition": `{"a": 1, "b": "2", "c": true, "d": 1.11}`,
		"Player/definition.cfg":   "[BGE]\nobject_name = Player\n",
		"Enemy/actor.definition":  `{}`,
		"Props/other.txt":         "x",
	} {
		fpath := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
			t.Fatal(err)
		}
		if err := ioutil.WriteFile(fpath, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testStore(t *testing.T, st Store) {
	var data map[string]interface{}
	if err := st.OpenJSON("Player", "actor.definition", &data); err != nil {
		t.Fatal(err)
	}
	if data["a"].(float64) != 1 || data["b"].(string) != "2" || data["c"].(bool) != true || data["d"].(float64) != 1.11 {
		t.Errorf("read wrong data: %v", data)
	}

	_, err := st.Open("Ghost", "actor.definition")
	assert.Equal(t, ErrNotFound, errors.Cause(err))

	assert.T(t, st.Exists("Player", "definition.cfg"))
	assert.T(t, !st.Exists("Enemy", "definition.cfg"))

	names, err := st.List("actor.definition")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []string{"Enemy", "Player"}, names)
}

func TestFileSystemStore(t *testing.T) {
	dir := makeStoreDir(t)
	st, err := OpenDirectory(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("opened %s", st)
	testStore(t, st)

	_, err = st.Open("../Player", "actor.definition")
	assert.T(t, err != nil, "path escape should be rejected")

	assert.Equal(t, filepath.Join(st.Directory(), "templates", "x.template"), st.Resolve("templates/x.template"))

	_, err = OpenDirectory(filepath.Join(dir, "missing"))
	assert.T(t, err != nil)
}

func TestMemoryStore(t *testing.T) {
	st := NewMemoryStore()
	st.Put("Player", "actor.definition", []byte(`{"a": 1, "b": "2", "c": true, "d": 1.11}`))
	st.Put("Player", "definition.cfg", []byte("[BGE]\n"))
	assert.Equal(t, nil, st.PutJSON("Enemy", "actor.definition", map[string]interface{}{}))
	st.Put("Props", "other.txt", []byte("x"))
	testStore(t, st)
	assert.Equal(t, "a/b", st.Resolve("a/b"))
}
