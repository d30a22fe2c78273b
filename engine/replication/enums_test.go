package replication

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestRoleOrder(t *testing.T) {
	assert.T(t, RoleNone < RoleDumbProxy)
	assert.T(t, RoleDumbProxy < RoleSimulatedProxy)
	assert.T(t, RoleSimulatedProxy < RoleAutonomousProxy)
	assert.T(t, RoleAutonomousProxy < RoleAuthority)
}

func TestParseRole(t *testing.T) {
	for s, want := range map[string]Role{
		"SIMULATED_PROXY":  RoleSimulatedProxy,
		"Simulated Proxy":  RoleSimulatedProxy,
		"autonomous_proxy": RoleAutonomousProxy,
		"authority":        RoleAuthority,
		"Dumb-Proxy":       RoleDumbProxy,
		"NONE":             RoleNone,
	} {
		got, err := ParseRole(s)
		assert.Equalf(t, nil, err, "%s", s)
		assert.Equalf(t, want, got, "%s", s)
	}
	_, err := ParseRole("king")
	assert.T(t, err != nil)
	assert.Equal(t, "AUTHORITY", RoleAuthority.String())
}

func TestParseNetMode(t *testing.T) {
	m, err := ParseNetMode("server")
	assert.Equal(t, nil, err)
	assert.Equal(t, NetModeServer, m)
	m, err = ParseNetMode("CLIENT")
	assert.Equal(t, nil, err)
	assert.Equal(t, NetModeClient, m)
	assert.Equal(t, NetModeServer, m.Other())
	_, err = ParseNetMode("LISTEN")
	assert.T(t, err != nil)
}

func TestRolesSwapped(t *testing.T) {
	r := Roles{Local: RoleAuthority, Remote: RoleSimulatedProxy}
	assert.Equal(t, Roles{Local: RoleSimulatedProxy, Remote: RoleAuthority}, r.Swapped())
}
