package replication

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Role is the authority level of a replicable on one machine
type Role uint8

const (
	// RoleNone means the replicable is not known on this machine
	RoleNone Role = iota
	// RoleDumbProxy receives replicated attributes but runs no simulation
	RoleDumbProxy
	// RoleSimulatedProxy simulates the replicable locally between updates
	RoleSimulatedProxy
	// RoleAutonomousProxy is the locally controlled copy of a remote replicable
	RoleAutonomousProxy
	// RoleAuthority owns the replicable
	RoleAuthority
)

var roleNames = []string{"NONE", "DUMB_PROXY", "SIMULATED_PROXY", "AUTONOMOUS_PROXY", "AUTHORITY"}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// Roles holds the local and remote role of a replicable
type Roles struct {
	Local  Role
	Remote Role
}

// Swapped returns the roles as seen from the other side of a connection
func (r Roles) Swapped() Roles {
	return Roles{Local: r.Remote, Remote: r.Local}
}

func (r Roles) String() string {
	return fmt.Sprintf("Roles<%s, %s>", r.Local, r.Remote)
}

// NetMode tells whether this process is the authoritative host or a connecting peer
type NetMode uint8

const (
	// NetModeServer is the authoritative host
	NetModeServer NetMode = iota + 1
	// NetModeClient is a connecting peer
	NetModeClient
)

// NetModes lists every network mode
var NetModes = []NetMode{NetModeServer, NetModeClient}

func (m NetMode) String() string {
	switch m {
	case NetModeServer:
		return "SERVER"
	case NetModeClient:
		return "CLIENT"
	}
	return fmt.Sprintf("NetMode(%d)", uint8(m))
}

// Other returns the opposite network mode
func (m NetMode) Other() NetMode {
	if m == NetModeServer {
		return NetModeClient
	}
	return NetModeServer
}

// normalizeEnumName converts display names such as "Simulated Proxy" or "simulated-proxy" to "SIMULATED_PROXY"
func normalizeEnumName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return strings.ToUpper(s)
}

// ParseRole converts a display-layer role name to a Role
func ParseRole(s string) (Role, error) {
	name := normalizeEnumName(s)
	for i, rn := range roleNames {
		if rn == name {
			return Role(i), nil
		}
	}
	return RoleNone, errors.Errorf("unknown role: %q", s)
}

// ParseNetMode converts a display-layer network mode name to a NetMode
func ParseNetMode(s string) (NetMode, error) {
	switch normalizeEnumName(s) {
	case "SERVER":
		return NetModeServer, nil
	case "CLIENT":
		return NetModeClient, nil
	}
	return 0, errors.Errorf("unknown netmode: %q", s)
}
