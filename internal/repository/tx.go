package repository

import "context"

// Transactor runs fn inside one database transaction, committing on a nil
// return and rolling back otherwise. The context passed to fn carries the
// transaction so repository calls made with it join the same unit of work;
// the clusterer's assignment protocol is the primary user of this, since it
// must run its advisory lock, candidate search, create-or-attach, and
// attach steps against a single transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
