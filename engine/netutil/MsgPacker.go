package netutil

var (
	// MSG_PACKER is used for packing and unpacking replication packets
	MSG_PACKER MsgPacker = MessagePackMsgPacker{}
	// SUBJECT_PACKER is used for packing subject payloads, which must stay printable
	SUBJECT_PACKER MsgPacker = JSONMsgPacker{}
)

// MsgPacker is used to packs and unpacks messages
type MsgPacker interface {
	PackMsg(msg interface{}, buf []byte) ([]byte, error)
	UnpackMsg(data []byte, msg interface{}) error
}
