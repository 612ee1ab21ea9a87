package store

import "context"

// RunSerializable runs fn in a SERIALIZABLE transaction on tx
// the ctx passed to fn carries the isolation marker so nested helpers can see it
func RunSerializable(ctx context.Context, tx TxRunner, fn func(ctx context.Context, q RowQuerier) error) error {
	ctx = WithIsolation(ctx, IsoSerializable)
	return tx.Tx(ctx, func(q RowQuerier) error {
		return fn(ctx, q)
	})
}
