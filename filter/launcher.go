package filter

import "context"

// Launcher starts band workers. Launch either arranges for fn to run
// exactly once and returns nil, or returns an error and never runs fn.
type Launcher interface {
	Launch(ctx context.Context, fn func()) error
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, fn func()) error

// Launch calls f(ctx, fn).
func (f LauncherFunc) Launch(ctx context.Context, fn func()) error {
	return f(ctx, fn)
}

// GoLauncher runs each worker on a new goroutine. It refuses to start
// workers once ctx is done.
type GoLauncher struct{}

// Launch implements Launcher.
func (GoLauncher) Launch(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	go fn()
	return nil
}
