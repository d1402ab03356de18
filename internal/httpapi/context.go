package httpapi

import "context"

// shutdownCtx is canceled when the daemon begins shutting down. Handlers that
// wait on the dispatcher (a model load or a queued inference) stop waiting
// when it ends, even if the client is still connected.
var shutdownCtx = context.Background()

// SetBaseContext installs the shutdown context; nil restores the default,
// which is never canceled.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	shutdownCtx = ctx
}

// joinContexts derives a context from the request that also ends with base.
// The returned stop func releases the link and must be called when the
// handler returns.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(req)
	unlink := context.AfterFunc(base, cancel)
	return ctx, func() {
		unlink()
		cancel()
	}
}
