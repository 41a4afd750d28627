package ctxutil

import "context"

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// Detached keeps ctx values (trace spans, loggers) but drops its cancellation,
// for background work that must outlive the request that started it.
func Detached(ctx context.Context) context.Context {
	return context.WithoutCancel(Default(ctx))
}
