// Package console forwards operator input to a container process.
//
// A [Forwarder] runs on the caller's goroutine as the main loop of a session.
// It reads operator lines and writes them verbatim to the process's standard
// input until the process exits, the context is cancelled, or input ends.
// When operator input ends the process's standard input is closed and the
// forwarder keeps waiting for the process to exit.
//
// Two wait strategies are available. [ModeSelect] waits on operator input,
// process exit and cancellation at once and returns as soon as the process
// exits. [ModePoll] checks the exit state, forwards at most one line and then
// sleeps for a fixed interval; a line read already pending when the process
// exits is completed first, so the loop may end one line late.
package console
