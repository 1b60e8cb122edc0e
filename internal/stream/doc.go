// Package stream turns raw process output into discrete line events.
//
// A [Pump] drains one output stream of a container process on its own
// goroutine. Each pump owns a private [Splitter] that accumulates runes and
// emits a line whenever a terminator is seen: "\n", "\r\n", or a bare "\r"
// followed by anything other than "\n". Whatever remains when the stream ends
// is emitted as a final partial line. Completed lines are handed to a [Sink],
// which dispatches each one to at most one handler per stream kind while
// holding a single lock, so lines from stdout and stderr never interleave
// mid-line on a shared terminal.
//
// Example usage:
//
//	sink := stream.NewSink(nil)
//	stream.Echo(sink, os.Stdout, os.Stderr)
//
//	out, err := stream.StartPump(stream.Stdout, proc.Stdout(), sink)
//	if err != nil {
//	    return err
//	}
//	out.Wait(5 * time.Second)
package stream
