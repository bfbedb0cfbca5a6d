// Package runtime wires config, a table backend and the claim components
// into one session. Every caller, whether the CLI, the HTTP facade or an
// embedding program, reaches the table only through the handles a Runtime
// hands out.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	defer rt.Close()
//	req := rt.ClaimRequest(item.StatusReady, item.StatusPosting)
//	w, _ := rt.Coordinator().ClaimFirstAvailable(ctx, req)
package runtime
