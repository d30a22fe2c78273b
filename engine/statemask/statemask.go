// Package statemask computes which behavior states of a host object may be active for a network role and mode.
package statemask

import (
	"math/bits"

	"github.com/netbricks/netbricks/engine/consts"
	"github.com/netbricks/netbricks/engine/replication"
	"github.com/pkg/errors"
)

// Masks holds the authored state bits for one network mode
type Masks struct {
	Active    uint32 // states authored for the mode
	Simulated uint32 // states also allowed on simulated proxies
}

// FromBools converts a list of at most 30 flags to a mask
func FromBools(flags []bool) (uint32, error) {
	if len(flags) > consts.NUM_BEHAVIOR_STATES {
		return 0, errors.Errorf("too many behavior states: %d > %d", len(flags), consts.NUM_BEHAVIOR_STATES)
	}
	var mask uint32
	for i, on := range flags {
		if on {
			mask |= 1 << uint(i)
		}
	}
	return mask, nil
}

// ToBools converts a mask to 30 flags
func ToBools(mask uint32) []bool {
	flags := make([]bool, consts.NUM_BEHAVIOR_STATES)
	for i := range flags {
		flags[i] = mask&(1<<uint(i)) != 0
	}
	return flags
}

// Input is the data Compute works on
type Input struct {
	Current     uint32                         // current host object state mask
	Masks       map[replication.NetMode]Masks // authored masks per network mode
	Mode        replication.NetMode
	Role        replication.Role
	JustCreated bool   // the role may not be final yet
	Used        uint32 // states used by the host object's controllers
}

// Compute returns the state mask for the input
//
// States authored for any mode are cleared from the current mask first, then the current mode's states are set
// according to the role. An entity created moments ago with an autonomous or unknown role is treated as a simulated
// proxy until its role is known. If no state results, the lowest state not in Used is chosen; ok is false when there
// is none.
func Compute(in Input) (mask uint32, ok bool) {
	mask = in.Current & consts.ALL_BEHAVIOR_STATES
	for _, m := range in.Masks {
		mask &^= m.Active
	}

	role := in.Role
	if in.JustCreated && (role == replication.RoleNone || role == replication.RoleAutonomousProxy) {
		role = replication.RoleSimulatedProxy
	}

	m := in.Masks[in.Mode]
	var modeMask uint32
	if role > replication.RoleSimulatedProxy {
		modeMask = m.Active
	} else if role == replication.RoleSimulatedProxy {
		modeMask = m.Active & m.Simulated
	}
	mask |= modeMask & consts.ALL_BEHAVIOR_STATES

	if mask != 0 {
		return mask, true
	}

	return DefaultState(in.Used)
}

// DefaultState returns the lowest state bit not in used
func DefaultState(used uint32) (uint32, bool) {
	free := ^used & consts.ALL_BEHAVIOR_STATES
	if free == 0 {
		return 0, false
	}
	return 1 << uint(bits.TrailingZeros32(free)), true
}

// StateIndex converts a single-bit state mask to its 1-based state number, as shown in the authoring tool
func StateIndex(state uint32) int {
	return bits.TrailingZeros32(state) + 1
}
