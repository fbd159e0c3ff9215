package orders

//go:generate mockgen -destination=mocks/mock_orders.go -package=mock_orders github.com/ariefcatur/go-orders-readpath/internal/orders Catalog,Publisher

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("order not found")

	// ErrStatementTimeout marks a query the backing store gave up on. It is
	// the only error that makes the read path try a cheaper strategy.
	ErrStatementTimeout = errors.New("statement timeout")
)

func IsTransient(err error) bool { return errors.Is(err, ErrStatementTimeout) }

// Key is the lightweight (id, date) pair the keyset paginator walks.
type Key struct {
	ID   string
	Date string
}

type KeyLister interface {
	// ListKeys returns keys ordered by date desc, id desc. With before set
	// only keys with date <= before.Date are returned.
	ListKeys(ctx context.Context, before *Cursor, limit int) ([]Key, error)
}

type RowFetcher interface {
	// FetchByIDs returns the rows whose id is in ids, in no particular order.
	FetchByIDs(ctx context.Context, ids []string, cols []string) ([]Row, error)
}

// Store is the orders table. A nil or empty cols selects every column.
type Store interface {
	RowSampler
	KeyLister
	RowFetcher

	// GetByID returns nil, nil when the order does not exist.
	GetByID(ctx context.Context, id string, cols []string) (Row, error)
	// ListByDate orders by date desc; a non-empty before keeps date < before.
	ListByDate(ctx context.Context, before string, limit int, cols []string) ([]Row, error)
	ListByID(ctx context.Context, limit int, cols []string) ([]Row, error)
	ListUnordered(ctx context.Context, limit int, cols []string) ([]Row, error)
	// Search matches term against the id and the customer's name, cpf and code.
	Search(ctx context.Context, term string, limit int, cols []string) ([]Row, error)

	// Update writes payload columns; ErrNotFound when id does not exist.
	Update(ctx context.Context, id string, payload Row) error
	// ModifyColumn locks the row, hands fn the current value of column and
	// writes back what fn returns. ErrNotFound when id does not exist; an
	// error from fn aborts without writing.
	ModifyColumn(ctx context.Context, id, column string, fn func(current any) (any, error)) error
	Delete(ctx context.Context, id string) error
}

type Seller struct {
	ID   string
	Name string
}

// Catalog answers the lookups the commission side effect needs.
type Catalog interface {
	ProductCommissions(ctx context.Context, productIDs []string) (map[string]CommissionConfig, error)
	FindSellerByName(ctx context.Context, name string) (Seller, bool, error)
}
