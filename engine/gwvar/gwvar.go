// Package gwvar publishes bridge state through expvar
package gwvar

import "expvar"

// Bool is a boolean expvar
type Bool struct {
	val *expvar.Int
}

// NewBool publishes a boolean variable with the name
func NewBool(name string) *Bool {
	return &Bool{
		val: expvar.NewInt(name),
	}
}

// Value returns the value
func (b *Bool) Value() bool {
	return b.val.Value() > 0
}

// Set sets the value
func (b *Bool) Set(v bool) {
	if v {
		b.val.Set(1)
	} else {
		b.val.Set(0)
	}
}

var (
	// NetMode is the network mode, empty until the network starts
	NetMode = expvar.NewString("netbricks.NetMode")
	// Entities is the number of bound entities
	Entities = expvar.NewInt("netbricks.Entities")
	// PacketsSent counts replication packets sent in the last metrics window
	PacketsSent = expvar.NewInt("netbricks.PacketsSent")
	// PacketsReceived counts replication packets received in the last metrics window
	PacketsReceived = expvar.NewInt("netbricks.PacketsReceived")
	// BytesSent counts replication bytes sent in the last metrics window
	BytesSent = expvar.NewInt("netbricks.BytesSent")
	// BytesReceived counts replication bytes received in the last metrics window
	BytesReceived = expvar.NewInt("netbricks.BytesReceived")
	// IsExiting is set when the loop started to exit
	IsExiting = NewBool("netbricks.IsExiting")
)
