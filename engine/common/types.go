package common

import "strconv"

// ObjectID identifies a host engine object for the lifetime of the process
type ObjectID uint64

func (id ObjectID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ConnectionID identifies a remote peer connection
type ConnectionID uint32
