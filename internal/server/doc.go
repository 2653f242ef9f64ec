// Package server accepts TCP connections and answers each one with a single
// HTTP/1.1 response, running every connection as one job on a worker pool.
//
// # Basic Usage
//
//	srv, err := server.New(server.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	go srv.Serve(ctx)
//	// ...
//	srv.Close() // waits for in-flight connections
//
// # Routing
//
// Unsupported methods get 501, unparsable requests 400, any path other than
// "/" 404, and GET or HEAD "/" the index page showing the client IP. A
// panic while routing becomes a 500 response; it never reaches the pool.
package server
