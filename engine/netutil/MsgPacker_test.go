package netutil

import (
	"testing"
)

type testPacket struct {
	Type uint8
	ID   uint32
	Name string
	Args []interface{}
}

func BenchmarkMessagePackMsgPacker(b *testing.B) {
	benchmarkMsgPacker(b, &MessagePackMsgPacker{})
}

func BenchmarkJSONMsgPacker(b *testing.B) {
	benchmarkMsgPacker(b, &JSONMsgPacker{})
}

func benchmarkMsgPacker(b *testing.B, packer MsgPacker) {
	b.Logf("Testing MsgPacker %T ...", packer)
	msg := testPacket{
		Type: 3,
		ID:   42,
		Name: "ping",
		Args: []interface{}{1, 2.5, "abc", true},
	}

	var totalSize int64
	for i := 0; i < b.N; i++ {
		buf := make([]byte, 0, 100)
		buf, _ = packer.PackMsg(msg, buf)
		totalSize += int64(len(buf))

		var restoreMsg testPacket
		_ = packer.UnpackMsg(buf, &restoreMsg)
	}
	b.Logf("average size: %d", totalSize/int64(b.N))
}

func TestMessagePackMsgPacker_UnpackMsg(t *testing.T) {
	msg := map[string]interface{}{
		"a": 1,
		"b": 2,
		"c": map[string]interface{}{
			"d": 1,
		},
	}
	buf := make([]byte, 0)
	buf, err := MessagePackMsgPacker{}.PackMsg(msg, buf)
	if err != nil {
		t.Error(err)
	}
	var outmsg map[string]interface{}
	MessagePackMsgPacker{}.UnpackMsg(buf, &outmsg)
	t.Logf("outmsg %T %v", outmsg, outmsg)
	if _, ok := outmsg["c"].(map[interface{}]interface{}); ok {
		t.Errorf("should not unpack with type map[interface{}]interface{}")
	}
}

func TestMessagePackStruct(t *testing.T) {
	in := testPacket{Type: 1, ID: 7, Name: "score", Args: []interface{}{"x"}}
	buf, err := MSG_PACKER.PackMsg(in, nil)
	if err != nil {
		t.Fatal(err)
	}
	var out testPacket
	if err := MSG_PACKER.UnpackMsg(buf, &out); err != nil {
		t.Fatal(err)
	}
	if out.Type != 1 || out.ID != 7 || out.Name != "score" || len(out.Args) != 1 || out.Args[0] != "x" {
		t.Errorf("wrong packet: %+v", out)
	}
}

func TestJSONMsgPackerNoNewline(t *testing.T) {
	buf, err := SUBJECT_PACKER.PackMsg([]interface{}{"ping", "Scene", 3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf) != `["ping","Scene",3]` {
		t.Errorf("wrong json: %q", buf)
	}
}
