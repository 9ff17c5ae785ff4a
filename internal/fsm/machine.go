// Package fsm implements the lifecycle state machine that drives the
// whole bridge binary: argument validation, the management interface's
// bootstrap, dispatch into one of the role loops, and the
// stop/apply/reselect cycle a runtime restart walks through.
package fsm

import (
	"context"
	"sync"

	"github.com/hcobbs/xoe/internal/mgmt"
	"github.com/hcobbs/xoe/internal/restartsignal"
	"github.com/hcobbs/xoe/internal/xoeconfig"
	"github.com/hcobbs/xoe/internal/xoelog"
)

// Boot is what an external argv/config builder hands the FSM to seed
// Init. Parsing argv itself is explicitly out of this package's scope;
// cmd/xoebridge's cobra-based builder produces this value.
type Boot struct {
	Configuration xoeconfig.Configuration
	ParseErr      error
	ListUSB       bool
	Help          bool
	HelpText      string
}

// Machine owns the root cancellation scope and the long-lived
// collaborators every role state shares: the Configuration Manager, the
// Restart Signal, and (once started) the Management Interface.
type Machine struct {
	ctx    context.Context
	cancel context.CancelFunc

	boot Boot

	cfg     *xoeconfig.Manager
	restart *restartsignal.Signal
	mgmtSrv *mgmt.Server

	active xoeconfig.Configuration

	mu          sync.Mutex
	clientPeers func() []string

	ExitCode int
}

// New builds a Machine rooted at ctx. ctx's cancellation (e.g. from
// signal.NotifyContext in main) is observed exactly once, here, and
// propagated to every role state's own derived context.
func New(ctx context.Context, boot Boot) *Machine {
	rootCtx, cancel := context.WithCancel(ctx)
	return &Machine{
		ctx:      rootCtx,
		cancel:   cancel,
		boot:     boot,
		restart:  &restartsignal.Signal{},
		ExitCode: 0,
	}
}

// Run drives the state loop from Init to Exit and returns the process
// exit code.
func (m *Machine) Run() int {
	var state State = initState{}
	for state != nil {
		state = state.Run(m)
	}
	return m.ExitCode
}

// setClientPeers installs the callback the management interface's
// "show clients" command uses, and clears it once the owning role loop
// exits.
func (m *Machine) setClientPeers(fn func() []string) {
	m.mu.Lock()
	m.clientPeers = fn
	m.mu.Unlock()
	if m.mgmtSrv != nil {
		m.mgmtSrv.SetClientPeers(fn)
	}
}

func (m *Machine) fail(err error) {
	xoelog.Error("fatal error, routing to cleanup", "error", err)
	m.ExitCode = 1
}
