// Package requestinfo carries the network origin of a request through the
// context so audit records can name it.
package requestinfo

import "context"

// Info is the origin recorded on every audit entry.
type Info struct {
	IP       string
	Platform string
	Path     string
}

type ctxKey struct{}

// With returns a context carrying info.
func With(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// From returns the origin stored in ctx, or the zero Info.
func From(ctx context.Context) Info {
	if ctx == nil {
		return Info{}
	}
	info, _ := ctx.Value(ctxKey{}).(Info)
	return info
}
