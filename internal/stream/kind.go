package stream

// Identifies one of the standard streams of a process.
type Kind int

const (
	Stdin  Kind = iota // Standard input. Never pumped; input has its own forwarding path.
	Stdout             // Standard output.
	Stderr             // Standard error.
)

// Returns the conventional short name of the stream.
func (k Kind) String() string {
	switch k {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// A single line captured from a process output stream.
//
// Text carries the line terminator exactly as it was read ("\n", "\r\n" or
// "\r"), or none for a final partial line. Text is never empty.
type Event struct {
	Kind Kind   // Stream the line was read from.
	Text string // Line content including its terminator.
}
