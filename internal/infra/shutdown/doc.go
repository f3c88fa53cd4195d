// Package shutdown coordinates how the server stops.
//
// Two independent triggers exist:
//
//   - Handler waits for SIGINT/SIGTERM, or for the server to end on its own,
//     then runs registered hooks in reverse order under a timeout.
//   - IdleCoordinator counts live connections and fires once no connection
//     has been open for a configured duration.
//
// Usage:
//
//	idle := shutdown.NewIdleCoordinator(5 * time.Minute)
//	h := shutdown.NewHandler(10 * time.Second)
//	h.OnShutdown(srv.Shutdown)
//	go srv.Serve(ctx, ln, idle)
//	reason, err := h.Wait(serveCtx)
package shutdown
