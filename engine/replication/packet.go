package replication

import (
	"fmt"

	"github.com/netbricks/netbricks/engine/netutil"
	"github.com/pkg/errors"
)

type packetType uint8

const (
	pktHello packetType = iota + 1
	pktCreate
	pktAttributes
	pktInvoke
	pktDeregister
	pktDisconnect
	pktDisconnectAck
)

var packetTypeNames = map[packetType]string{
	pktHello:         "HELLO",
	pktCreate:        "CREATE",
	pktAttributes:    "ATTRIBUTES",
	pktInvoke:        "INVOKE",
	pktDeregister:    "DEREGISTER",
	pktDisconnect:    "DISCONNECT",
	pktDisconnectAck: "DISCONNECT_ACK",
}

func (t packetType) String() string {
	if name, ok := packetTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("packetType(%d)", uint8(t))
}

// packet is the unit sent between peers. Fields not used by a packet type are left empty.
type packet struct {
	Type     packetType
	Scene    string
	ID       uint64
	Class    string
	Name     string
	Args     []interface{}
	Attrs    map[string]interface{}
	HasRoles bool
	Local    Role
	Remote   Role
}

func (pkt *packet) String() string {
	return fmt.Sprintf("%s<%s#%d %s%s>", pkt.Type, pkt.Scene, pkt.ID, pkt.Class, pkt.Name)
}

func (pkt *packet) roles() Roles {
	return Roles{Local: pkt.Local, Remote: pkt.Remote}
}

func packPacket(pkt *packet) ([]byte, error) {
	data, err := netutil.MSG_PACKER.PackMsg(pkt, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", pkt)
	}
	return data, nil
}

func unpackPacket(data []byte) (*packet, error) {
	var pkt packet
	if err := netutil.MSG_PACKER.UnpackMsg(data, &pkt); err != nil {
		return nil, errors.Wrap(err, "unpack packet")
	}
	return &pkt, nil
}
