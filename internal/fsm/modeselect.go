package fsm

import (
	"context"

	"github.com/hcobbs/xoe/internal/telemetry"
	"github.com/hcobbs/xoe/internal/xoeconfig"
	"github.com/hcobbs/xoe/internal/xoelog"
)

// roleState is satisfied by every role loop. Run blocks until the role
// hits a terminal condition (true) or the Restart Signal fired (false).
type roleState interface {
	run(ctx context.Context, m *Machine) (terminal bool, err error)
}

// modeSelectState dispatches on the active Configuration's role.
type modeSelectState struct{}

func (modeSelectState) Run(m *Machine) State {
	m.active = m.cfg.Active()

	var role roleState
	switch m.active.Role {
	case xoeconfig.RoleHelp:
		return cleanupState{}
	case xoeconfig.RoleServer:
		role = &serverModeState{}
	case xoeconfig.RoleStdClient:
		role = &stdClientState{}
	case xoeconfig.RoleSerialClient:
		role = &serialClientState{}
	case xoeconfig.RoleUsbClient:
		role = &usbClientState{}
	case xoeconfig.RoleNbdServer:
		role = &nbdServerState{}
	default:
		xoelog.Error("unknown role, routing to cleanup", "role", m.active.Role)
		return cleanupState{}
	}

	roleCtx, cancel := context.WithCancel(m.ctx)
	defer cancel()

	roleCtx, span := telemetry.StartSpan(roleCtx, "role.run")
	terminal, err := role.run(roleCtx, m)
	telemetry.RecordError(roleCtx, err)
	span.End()
	m.setClientPeers(nil)

	if err != nil {
		xoelog.Error("role loop exited with error", "role", m.active.Role, "error", err)
	}
	if terminal {
		if err != nil {
			m.fail(err)
		}
		return cleanupState{}
	}
	return modeStopState{}
}

// modeStopState performs role-agnostic bookkeeping after a role loop
// returns because the Restart Signal fired: the role itself has
// already closed its own sockets and joined its tasks by the time
// run() returns, so this state only clears the signal before handing
// off to ApplyConfig.
type modeStopState struct{}

func (modeStopState) Run(m *Machine) State {
	m.restart.Clear()
	return applyConfigState{}
}

// applyConfigState re-validates pending and, on success, atomically
// swaps it into active.
type applyConfigState struct{}

func (applyConfigState) Run(m *Machine) State {
	applied, err := m.cfg.Apply()
	if err != nil {
		xoelog.Error("pending configuration failed re-validation, this should be impossible under correct operation", "error", err)
		m.fail(err)
		return cleanupState{}
	}
	if applied {
		xoelog.Info("applied pending configuration", "role", m.cfg.Active().Role)
	}
	m.restart.Clear()
	return modeSelectState{}
}
