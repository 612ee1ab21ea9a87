package store

import "context"

// IsoLevel names a transaction isolation level understood by the pg adapter
type IsoLevel string

const (
	// IsoDefault uses the server default (read committed)
	IsoDefault IsoLevel = ""
	// IsoRepeatableRead is snapshot isolation
	IsoRepeatableRead IsoLevel = "repeatable_read"
	// IsoSerializable is full serializable isolation
	IsoSerializable IsoLevel = "serializable"
)

type isoKey struct{}

// WithIsolation asks the next Tx started with ctx to use level
func WithIsolation(ctx context.Context, level IsoLevel) context.Context {
	return context.WithValue(ctx, isoKey{}, level)
}

// Isolation returns the level requested on ctx, IsoDefault when unset
func Isolation(ctx context.Context) IsoLevel {
	v, _ := ctx.Value(isoKey{}).(IsoLevel)
	return v
}
