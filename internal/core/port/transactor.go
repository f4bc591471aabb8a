package port

import "context"

// Transactor runs fn inside a single database transaction. Repositories
// invoked with the context passed to fn participate in that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
