package session

// Lifecycle position of a session.
type State int32

const (
	Idle             State = iota // Nothing acquired.
	SandboxReady                  // Sandbox storage exists.
	ContainerRunning              // Container created and started.
	ProcessAttached               // Process started and output pumps running.
	Draining                      // Forwarding input until the process exits.
	TornDown                      // Release chain finished.
)

// Returns the state's name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SandboxReady:
		return "sandbox-ready"
	case ContainerRunning:
		return "container-running"
	case ProcessAttached:
		return "process-attached"
	case Draining:
		return "draining"
	case TornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}
