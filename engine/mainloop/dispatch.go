package mainloop

import (
	"strconv"
	"strings"

	"github.com/netbricks/netbricks/engine/common"
	"github.com/netbricks/netbricks/engine/consts"
	"github.com/netbricks/netbricks/engine/controller"
	"github.com/netbricks/netbricks/engine/entity"
	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/netbricks/netbricks/engine/gwutils"
	"github.com/netbricks/netbricks/engine/host"
	"github.com/netbricks/netbricks/engine/replication"
	"github.com/netbricks/netbricks/engine/subject"
	"github.com/pkg/errors"
)

const _DEFAULT_CONNECT_HOST = "localhost"

type deferredMessage struct {
	msg  subject.Message
	from common.ObjectID
}

// processMessages handles the subjects signaled in the current frame
//
// Global messages run first, in arrival order, so a SET_NETMODE in this frame is in effect for the instance and
// scene messages of the same frame. Messages sent while handling are delivered in the next frame.
func (gl *GameLoop) processMessages() {
	var deferred []deferredMessage
	for _, raw := range gl.engine.Bus().Drain(gl.cfg.Bridge.DispatcherName) {
		if raw.Body == consts.INTERNAL_MESSAGE_BODY {
			continue
		}
		msg, err := subject.Decode(raw.Subject)
		if err != nil {
			if errors.Cause(err) != subject.ErrUnknownSubject {
				gwlog.Warnf("%s: drop %s: %v", gl, raw, err)
			}
			continue
		}
		if consts.DEBUG_SUBJECTS {
			gwlog.Debugf("%s: %s from %s", gl, msg, raw.From)
		}

		if msg.Category.Scope() == subject.ScopeGlobal {
			gwutils.RunPanicless(func() { gl.handleGlobal(msg) })
		} else {
			deferred = append(deferred, deferredMessage{msg, raw.From})
		}
	}

	for _, dm := range deferred {
		if gl.svc == nil {
			gwlog.Debugf("%s: drop %s: network mode is not set", gl, dm.msg)
			continue
		}
		dm := dm
		gwutils.RunPanicless(func() {
			var err error
			if dm.msg.Category.Scope() == subject.ScopeInstance {
				err = gl.handleInstance(dm.msg)
			} else {
				err = gl.handleScene(dm.msg, dm.from)
			}
			gl.logDispatchError(dm.msg, err)
		})
	}
}

func (gl *GameLoop) logDispatchError(msg subject.Message, err error) {
	if err == nil {
		return
	}
	switch errors.Cause(err) {
	case entity.ErrUnknownInstance, controller.ErrNoPawn:
		gwlog.Debugf("%s: drop %s: %v", gl, msg, err)
	default:
		gwlog.Warnf("%s: %s: %v", gl, msg, err)
	}
}

func (gl *GameLoop) handleGlobal(msg subject.Message) {
	switch msg.Category {
	case subject.SetNetMode:
		mode, err := replication.ParseNetMode(msg.Name)
		if err != nil {
			gwlog.Errorf("%s: cannot set network mode: %v", gl, err)
			return
		}
		if err := gl.SetNetMode(mode); err != nil {
			gwlog.Errorf("%s: set network mode %s failed: %v", gl, mode, err)
		}
	case subject.ConnectTo:
		if err := gl.ConnectTo(msg.Name); err != nil {
			gwlog.Errorf("%s: connect to %q failed: %v", gl, msg.Name, err)
		}
	default:
		// CONTROLLER_REQUEST is announced by the bridge, not handled by it
		gwlog.Debugf("%s: ignore %s", gl, msg)
	}
}

// ConnectTo connects a client to an address of the form "host::port"; an empty host means localhost
func (gl *GameLoop) ConnectTo(address string) error {
	if gl.svc == nil {
		return errors.New("network mode is not set")
	}
	parts := strings.SplitN(address, "::", 2)
	if len(parts) != 2 {
		return errors.Errorf("invalid address %q", address)
	}
	hostPart, portPart := parts[0], parts[1]
	if hostPart == "" {
		hostPart = _DEFAULT_CONNECT_HOST
	}
	port, err := strconv.Atoi(portPart)
	if err != nil {
		return errors.Errorf("invalid port in %q", address)
	}
	return gl.svc.Connect(hostPart, port)
}

func (gl *GameLoop) handleInstance(msg subject.Message) error {
	switch msg.Category {
	case subject.RPCInvoke:
		return gl.registry.OnInboundRPC(msg.Scene, msg.ID, msg.Name)
	case subject.Notification:
		return gl.registry.OnInboundNotify(msg.Scene, msg.ID, msg.Name)
	case subject.SelfMessage:
		return gl.registry.OnInboundSelfMessage(msg.Scene, msg.ID, msg.Name)
	case subject.MethodInvoke:
		return gl.registry.OnInboundMethod(msg.Scene, msg.ID, msg.Name)
	}

	e := gl.registry.Get(msg.Scene, msg.ID)
	if e == nil {
		return errors.Wrapf(entity.ErrUnknownInstance, "%s#%d", msg.Scene, msg.ID)
	}
	switch msg.Category {
	case subject.ControllerReassign:
		_, err := gl.controllers.OnReassigned(msg.Name, e)
		return err
	case subject.NewPawn:
		return gl.controllers.SendToNewPawn(msg.Scene, e.Host.ID(), msg.Name)
	}
	return errors.Errorf("unexpected instance category %s", msg.Category)
}

func (gl *GameLoop) handleScene(msg subject.Message, from common.ObjectID) error {
	if gl.engine.Scene(msg.Scene) == nil {
		return errors.Errorf("scene %s not found", msg.Scene)
	}
	switch msg.Category {
	case subject.SceneMessage:
		gl.engine.Bus().Send(host.Message{
			Subject: subject.MustEncode(subject.Scene(subject.SceneMessage, msg.Name, msg.Scene)),
			Body:    consts.INTERNAL_MESSAGE_BODY,
		})
		return nil
	case subject.ControllerAssign:
		instigator := from
		if instigator == 0 {
			instigator = common.ObjectID(msg.ID)
		}
		_, err := gl.controllers.OnAssigned(msg.Scene, msg.Name, instigator)
		return err
	}
	return errors.Errorf("unexpected scene category %s", msg.Category)
}
