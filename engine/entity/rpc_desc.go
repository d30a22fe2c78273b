package entity

import (
	"sort"

	"github.com/netbricks/netbricks/engine/definition"
	"github.com/netbricks/netbricks/engine/replication"
	"github.com/pkg/errors"
)

const (
	rfReliable = 1 << iota
	rfSimulated
)

// rpcStub is the generated entry point of one RPC
type rpcStub func(e *Entity, args []interface{}) error

type rpcDesc struct {
	Name     string
	Flags    uint
	Target   replication.NetMode
	Args     []definition.Argument // sorted by name
	ArgNames []string
	Stub     rpcStub
}

func (rd *rpcDesc) reliable() bool {
	return rd.Flags&rfReliable != 0
}

func (rd *rpcDesc) simulated() bool {
	return rd.Flags&rfSimulated != 0
}

// convertArgs converts args to the declared argument types, filling missing args with zero values
func (rd *rpcDesc) convertArgs(args []interface{}) ([]interface{}, error) {
	if len(args) > len(rd.Args) {
		return nil, errors.Errorf("rpc %s takes %d arguments, %d given", rd.Name, len(rd.Args), len(args))
	}
	res := make([]interface{}, len(rd.Args))
	for i, arg := range rd.Args {
		if i >= len(args) || args[i] == nil {
			res[i] = arg.Type.Zero()
			continue
		}
		v, err := arg.Type.Coerce(args[i])
		if err != nil {
			return nil, errors.WithMessagef(err, "rpc %s argument %s", rd.Name, arg.Name)
		}
		res[i] = v
	}
	return res, nil
}

type rpcDescMap map[string]*rpcDesc

func (rdm rpcDescMap) visit(rpc *definition.RPC) {
	var flag uint
	if rpc.Reliable {
		flag |= rfReliable
	}
	if rpc.Simulated {
		flag |= rfSimulated
	}

	rd := &rpcDesc{
		Name:   rpc.Name,
		Flags:  flag,
		Target: rpc.Target,
		Args:   rpc.SortedArguments(),
	}
	for _, arg := range rd.Args {
		rd.ArgNames = append(rd.ArgNames, arg.Name)
	}
	rd.Stub = func(e *Entity, args []interface{}) error {
		converted, err := rd.convertArgs(args)
		if err != nil {
			return err
		}
		return e.dispatchRPC(rd, converted)
	}
	rdm[rpc.Name] = rd
}

func (rdm rpcDescMap) names() []string {
	names := make([]string, 0, len(rdm))
	for name := range rdm {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
