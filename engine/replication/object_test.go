package replication

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestObjectAttributes(t *testing.T) {
	obj := NewObject(&testClass{name: "Crate"}, "Scene", Roles{RoleAuthority, RoleDumbProxy})
	obj.Set("score", int64(1))
	assert.T(t, obj.IsDirty("score"))
	obj.ClearDirty()
	obj.Set("score", int64(1))
	assert.T(t, !obj.IsDirty("score"), "same value should not be dirty")
	assert.Equal(t, Roles{RoleAuthority, RoleDumbProxy}, obj.Get(RolesAttribute))

	obj.SetRoles(Roles{RoleAuthority, RoleSimulatedProxy})
	assert.T(t, obj.IsDirty(RolesAttribute))
	assert.Equal(t, "Crate<Scene#0>", obj.String())
}

func TestControllerTakeControl(t *testing.T) {
	class := &testClass{name: "Player"}
	a := NewObject(class, "Scene", Roles{})
	b := NewObject(class, "Scene", Roles{})
	c1 := NewController(1)
	c2 := NewController(2)

	c1.TakeControl(a)
	assert.T(t, c1.Pawn() == a && a.Owner() == c1)

	c1.TakeControl(b)
	assert.T(t, a.Owner() == nil, "previous pawn should be released")
	assert.T(t, b.Owner() == c1)

	c2.TakeControl(b)
	assert.T(t, c1.Pawn() == nil, "pawn moved to another controller")
	assert.T(t, b.Owner() == c2)

	c2.ReleaseControl()
	assert.T(t, b.Owner() == nil && c2.Pawn() == nil)
	c2.ReleaseControl()
}
