package host

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestBusDoubleBuffered(t *testing.T) {
	e := NewMemoryEngine(60)
	scene := e.AddScene("Scene")
	obj := scene.Spawn("Player")

	obj.SendMessage("hello", "", "")
	assert.Equal(t, 0, len(e.Bus().Drain("DISPATCHER")), "sent messages wait for the next frame")

	e.NextFrame()
	msgs := e.Bus().Drain("DISPATCHER")
	assert.Equal(t, 1, len(msgs))
	assert.Equal(t, "hello", msgs[0].Subject)
	assert.Equal(t, obj.ID(), msgs[0].From)
	assert.Equal(t, 0, len(e.Bus().Drain("DISPATCHER")), "drain once per frame")

	// sending while handling the current frame goes to the next one
	obj.SendMessage("reply", "", "")
	assert.Equal(t, 1, len(e.MemoryBus().Current()))
	assert.Equal(t, 1, len(e.MemoryBus().Pending()))
	e.NextFrame()
	assert.Equal(t, "reply", e.Bus().Drain("DISPATCHER")[0].Subject)
}

func TestBusTargeted(t *testing.T) {
	e := NewMemoryEngine(60)
	scene := e.AddScene("Scene")
	a := scene.Spawn("A")
	b := scene.Spawn("B")
	a.AddSensor("ping")
	b.AddSensor("ping")

	a.SendMessage("ping", "", "B")
	e.NextFrame()
	assert.Equal(t, 0, len(a.Received()))
	assert.Equal(t, []string{"ping"}, b.Received())
	assert.Equal(t, 0, len(e.Bus().Drain("A")))
	assert.Equal(t, 1, len(e.Bus().Drain("B")))
}

func TestSceneObjects(t *testing.T) {
	e := NewMemoryEngine(60)
	scene := e.AddScene("Scene")
	assert.T(t, e.Scene("Scene") != nil)
	assert.T(t, e.Scene("Other") == nil)

	tmpl := scene.AddInactive("Bullet")
	tmpl.SetProperty("speed", 3.0)
	tmpl.AddSensor("@fire")

	_, err := scene.AddObject("Rocket")
	assert.T(t, err != nil)

	obj, err := scene.AddObject("Bullet")
	if err != nil {
		t.Fatal(err)
	}
	assert.T(t, obj.ID() != tmpl.ID())
	v, ok := obj.Property("speed")
	assert.T(t, ok)
	assert.Equal(t, 3.0, v)

	// sensors are copied, not shared
	obj.MessageSensors()[0].Subject = "changed"
	assert.Equal(t, "@fire", tmpl.MessageSensors()[0].Subject)
	assert.Equal(t, 1, len(scene.Objects()))
	assert.Equal(t, 1, len(scene.InactiveObjects()))

	obj.End()
	assert.T(t, !obj.Invalid())
	e.NextFrame()
	assert.T(t, obj.Invalid())
	assert.Equal(t, 0, len(scene.Objects()))
	assert.Equal(t, 1, e.Frame())
}
