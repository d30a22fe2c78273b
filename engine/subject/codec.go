package subject

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/netbricks/netbricks/engine/netutil"
	"github.com/pkg/errors"
)

// Message is a decoded subject
//
// Name is the RPC, attribute or message name for instance and scene categories, and the raw argument for global
// categories. ID is the replicable id for instance categories and the optional sender host object id for scene
// categories (zero when absent).
type Message struct {
	Category Category
	Name     string
	Scene    string
	ID       uint64
}

func (m Message) String() string {
	switch m.Category.Scope() {
	case ScopeInstance:
		return fmt.Sprintf("%s<%s@%s#%d>", m.Category, m.Name, m.Scene, m.ID)
	case ScopeScene:
		return fmt.Sprintf("%s<%s@%s>", m.Category, m.Name, m.Scene)
	}
	return fmt.Sprintf("%s<%s>", m.Category, m.Name)
}

// Instance creates an instance scoped message
func Instance(cat Category, name string, scene string, id uint64) Message {
	return Message{Category: cat, Name: name, Scene: scene, ID: id}
}

// Scene creates a scene scoped message
func Scene(cat Category, name string, scene string) Message {
	return Message{Category: cat, Name: name, Scene: scene}
}

// Global creates a global message carrying arg
func Global(cat Category, arg string) Message {
	return Message{Category: cat, Name: arg}
}

// Encode converts the message to its subject string
func Encode(msg Message) (string, error) {
	if !msg.Category.Valid() {
		return "", errors.Errorf("encode: invalid category %d", msg.Category)
	}

	var payload interface{}
	switch msg.Category.Scope() {
	case ScopeInstance:
		payload = []interface{}{msg.Name, msg.Scene, msg.ID}
	case ScopeScene:
		if msg.ID != 0 {
			payload = []interface{}{msg.Name, msg.Scene, msg.ID}
		} else {
			payload = []interface{}{msg.Name, msg.Scene}
		}
	default:
		return msg.Category.Tag() + msg.Name, nil
	}

	data, err := netutil.SUBJECT_PACKER.PackMsg(payload, nil)
	if err != nil {
		return "", errors.Wrapf(err, "encode %s", msg.Category)
	}
	return msg.Category.Tag() + string(data), nil
}

// MustEncode is like Encode but panics on error
func MustEncode(msg Message) string {
	s, err := Encode(msg)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode converts a subject string back to a message
//
// Tags are tried longest first. The returned error has ErrUnknownSubject or ErrMalformedPayload as its cause.
func Decode(raw string) (Message, error) {
	cat, rest, ok := Split(raw, 0)
	if !ok {
		return Message{}, errors.Wrapf(ErrUnknownSubject, "%q", raw)
	}

	msg := Message{Category: cat}
	if cat.Scope() == ScopeGlobal {
		msg.Name = rest
		return msg, nil
	}

	var fields []interface{}
	if err := netutil.SUBJECT_PACKER.UnpackMsg([]byte(rest), &fields); err != nil {
		return Message{}, errors.Wrapf(ErrMalformedPayload, "%s payload %q: %v", cat, rest, err)
	}

	switch {
	case cat.Scope() == ScopeInstance && len(fields) == 3:
	case cat.Scope() == ScopeScene && (len(fields) == 2 || len(fields) == 3):
	default:
		return Message{}, errors.Wrapf(ErrMalformedPayload, "%s payload %q: wrong field count %d", cat, rest, len(fields))
	}

	if msg.Name, ok = fields[0].(string); !ok {
		return Message{}, errors.Wrapf(ErrMalformedPayload, "%s payload %q: name is not a string", cat, rest)
	}
	if msg.Scene, ok = fields[1].(string); !ok {
		return Message{}, errors.Wrapf(ErrMalformedPayload, "%s payload %q: scene is not a string", cat, rest)
	}
	if len(fields) == 3 {
		id, err := parseID(fields[2])
		if err != nil {
			return Message{}, errors.Wrapf(ErrMalformedPayload, "%s payload %q: %v", cat, rest, err)
		}
		msg.ID = id
	}
	return msg, nil
}

func parseID(v interface{}) (uint64, error) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, errors.Errorf("id %v is not a number", v)
	}
	id, err := strconv.ParseUint(num.String(), 10, 64)
	if err != nil {
		return 0, errors.Errorf("id %s is not a non-negative integer", num)
	}
	return id, nil
}
