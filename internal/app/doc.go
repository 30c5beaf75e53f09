// Package app assembles the selection stack from configuration.
//
// It owns construction order and shutdown: one store connector shared by the
// registry and the native backend, a transient session manager optionally
// tied to process signals, and the dispatcher that fronts them both.
//
// Example Usage:
//
//	a, err := app.New(config.LoadOrDefault())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Close()
//	if err := a.Init(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	result, err := a.Selections.Add(ctx, handles, types.Metadata{})
package app
