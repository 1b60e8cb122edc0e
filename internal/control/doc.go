// Package control implements the per-session control socket.
//
// Every running session listens on a Unix domain socket named after its ID.
// Other cruxrun invocations connect to it to query the session or ask it to
// stop. Each connection carries a single request-response exchange: the
// client sends a newline-delimited JSON [Envelope], the server dispatches the
// command and writes the result back before closing the connection.
//
// Example usage:
//
//	srv, err := control.New(control.Config{
//	    SocketPath: paths.SessionSocket(ctrl.ID()),
//	    Session:    ctrl,
//	    Stop:       cancel,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Close()
//
// And from another process:
//
//	status, err := control.Status(ctx, paths.SessionSocket(id))
package control
