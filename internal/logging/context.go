package logging

import "context"

type ctxArgsKey struct{}

// ContextWith returns a copy of ctx carrying key-value pairs that every
// Logger adds to records logged with that context. Pairs accumulate across
// calls, so handlers can attach a request id and later an owner id.
func ContextWith(ctx context.Context, args ...any) context.Context {
	prev := contextArgs(ctx)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(merged, prev...)
	merged = append(merged, args...)
	return context.WithValue(ctx, ctxArgsKey{}, merged)
}

func contextArgs(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	args, _ := ctx.Value(ctxArgsKey{}).([]any)
	return args
}
