package fsm

// State is one node of the lifecycle state machine. Run performs the
// state's work against m and returns the next state to run, or nil to
// stop the driver loop (only exitState does this).
type State interface {
	Run(m *Machine) State
}
