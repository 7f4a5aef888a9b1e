package pos

import (
	"context"
	"errors"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/accounting"
)

// errNumberConflict signals a lost race on sale number allocation.
var errNumberConflict = errors.New("pos: sale number conflict")

// Repository abstracts walk-in sale persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, orgID, saleID int64) (Sale, error)
	ListSales(ctx context.Context, orgID int64, status SaleStatus, limit, offset int) ([]Sale, error)
}

// TxRepository exposes the writes that share the posting transaction.
type TxRepository interface {
	Accounting() accounting.TxRepository
	NextSaleSequence(ctx context.Context, orgID int64, year int) (int64, error)
	InsertSale(ctx context.Context, sale Sale, sequence int64) (Sale, error)
	GetSaleForUpdate(ctx context.Context, orgID, saleID int64) (Sale, error)
	MarkSalePosted(ctx context.Context, saleID, voucherID, actorID int64, at time.Time) error
	UpdateSaleStatus(ctx context.Context, saleID int64, status SaleStatus, at time.Time) error
}
