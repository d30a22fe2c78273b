// Package subject maps message bus subjects to typed (category, payload) messages.
//
// The game engine's message bus carries a single string per event. Every message family the bridge
// understands is identified by a literal tag at the start of the subject, followed by a category
// specific payload:
//
//	instance categories:  tag + ["name","scene",id]
//	scene categories:     tag + ["name","scene"] or tag + ["name","scene",senderObjectID]
//	global categories:    tag + raw argument
//
// No tag is a leading substring of another tag, so decoding is unambiguous.
package subject

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownSubject is returned when no category tag matches a subject
	ErrUnknownSubject = errors.New("unknown subject")
	// ErrMalformedPayload is returned when the payload after a tag cannot be parsed
	ErrMalformedPayload = errors.New("malformed subject payload")
)

// Scope tells which payload shape a category carries
type Scope uint8

const (
	// ScopeInstance payloads address one replicable by scene and id
	ScopeInstance Scope = iota + 1
	// ScopeScene payloads address one scene, optionally naming the sending host object
	ScopeScene
	// ScopeGlobal payloads are a raw scalar argument
	ScopeGlobal
)

func (s Scope) String() string {
	switch s {
	case ScopeInstance:
		return "instance"
	case ScopeScene:
		return "scene"
	case ScopeGlobal:
		return "global"
	}
	return fmt.Sprintf("Scope(%d)", uint8(s))
}

// Category is the closed set of message families carried on the bus
type Category uint8

const (
	// RPCInvoke asks the replicable to invoke (or reports the execution of) an RPC
	RPCInvoke Category = iota + 1
	// Notification reports that a replicated attribute changed
	Notification
	// SelfMessage is delivered only to the host object of one replicable
	SelfMessage
	// MethodInvoke calls a zero-argument bridge method of the replicable
	MethodInvoke
	// ControllerReassign asks to swap the pawn of the replicable's controller for a new type
	ControllerReassign
	// NewPawn forwards a message to the pawn created for the replicable's controller
	NewPawn
	// SceneMessage is re-broadcast to scene scoped sensors
	SceneMessage
	// ControllerAssign answers a pending controller with the pawn type to create
	ControllerAssign
	// SetNetMode boots the network in the named mode
	SetNetMode
	// ConnectTo connects a client to host::port
	ConnectTo
	// ControllerRequest signals that a controller is waiting for a pawn
	ControllerRequest

	// one past the last category
	categoryEnd
)

type categoryInfo struct {
	name  string
	tag   string
	scope Scope
}

var categoryInfos = [categoryEnd]categoryInfo{
	RPCInvoke:          {"RPC_INVOKE", "@", ScopeInstance},
	Notification:       {"NOTIFICATION", "!", ScopeInstance},
	SelfMessage:        {"SELF_MESSAGE", "->", ScopeInstance},
	MethodInvoke:       {"METHOD_INVOKE", "#", ScopeInstance},
	ControllerReassign: {"CONTROLLER_REASSIGN", "CHANGE_PAWN::", ScopeInstance},
	NewPawn:            {"NEW_PAWN", "NEW_PAWN->", ScopeInstance},
	SceneMessage:       {"SCENE_MESSAGE", "SCENE->", ScopeScene},
	ControllerAssign:   {"CONTROLLER_ASSIGN", "NEW_PAWN=", ScopeScene},
	SetNetMode:         {"SET_NETMODE", "NETMODE=", ScopeGlobal},
	ConnectTo:          {"CONNECT_TO", "CONNECT->", ScopeGlobal},
	ControllerRequest:  {"CONTROLLER_REQUEST", "CONTROLLER_REQUEST", ScopeGlobal},
}

// tags sorted longest first
var decodeOrder []Category

func init() {
	if err := ValidateTags(); err != nil {
		panic(err)
	}

	for c := Category(1); c < categoryEnd; c++ {
		decodeOrder = append(decodeOrder, c)
	}
	sort.SliceStable(decodeOrder, func(i, j int) bool {
		return len(decodeOrder[i].Tag()) > len(decodeOrder[j].Tag())
	})
}

// Categories returns all categories
func Categories() []Category {
	cats := make([]Category, 0, categoryEnd-1)
	for c := Category(1); c < categoryEnd; c++ {
		cats = append(cats, c)
	}
	return cats
}

// Valid returns if the category is one of the known categories
func (c Category) Valid() bool {
	return c > 0 && c < categoryEnd
}

// Tag returns the literal subject prefix of the category
func (c Category) Tag() string {
	if !c.Valid() {
		return ""
	}
	return categoryInfos[c].tag
}

// Scope returns the payload shape of the category
func (c Category) Scope() Scope {
	if !c.Valid() {
		return 0
	}
	return categoryInfos[c].scope
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
	return categoryInfos[c].name
}

// CategoryByName returns the category with the given name, e.g. "RPC_INVOKE"
func CategoryByName(name string) (Category, bool) {
	for c := Category(1); c < categoryEnd; c++ {
		if categoryInfos[c].name == name {
			return c, true
		}
	}
	return 0, false
}

// ValidateTags checks that no tag is empty or a leading substring of another tag
func ValidateTags() error {
	for a := Category(1); a < categoryEnd; a++ {
		if a.Tag() == "" {
			return errors.Errorf("category %s has no tag", a)
		}
		for b := Category(1); b < categoryEnd; b++ {
			if a != b && strings.HasPrefix(b.Tag(), a.Tag()) {
				return errors.Errorf("tag %q of %s is a prefix of tag %q of %s", a.Tag(), a, b.Tag(), b)
			}
		}
	}
	return nil
}

// Split finds the category whose tag starts the raw subject and returns the remainder
//
// Unlike Decode it does not parse the remainder. It is used for author-facing subjects such as "@ping".
func Split(raw string, scope Scope) (Category, string, bool) {
	for _, c := range decodeOrder {
		if scope != 0 && c.Scope() != scope {
			continue
		}
		if strings.HasPrefix(raw, c.Tag()) {
			return c, raw[len(c.Tag()):], true
		}
	}
	return 0, "", false
}
