// Package repokit is the SQL surface repositories and services are written against
package repokit

import "mpak/internal/platform/store"

type (
	// Queryer is what a repository needs: a pool or an open transaction
	Queryer = store.RowQuerier
	// TxRunner can also open transactions
	TxRunner = store.TxRunner
	// Rows are the result set of a query
	Rows = store.Rows
	// Row is a single row result
	Row = store.Row
	// CommandTag reports what a statement changed
	CommandTag = store.CommandTag
)

// Binder builds a repository bound to q, typically the transaction of one publish
type Binder[T any] interface {
	Bind(q Queryer) T
}

// BindFunc adapts a function to Binder
type BindFunc[T any] func(Queryer) T

// Bind calls f
func (f BindFunc[T]) Bind(q Queryer) T { return f(q) }
