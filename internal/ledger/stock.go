package ledger

import (
	"fmt"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

// Stock mutations operate on a row the caller holds locked inside a
// transaction. Every mutation keeps 0 <= reserved_qty <= qty and
// rederives the stock status before the row is saved.

// AddStock books incoming units onto the ledger row.
func AddStock(product *models.Product, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	product.Qty += qty
	syncStatus(product)
	return nil
}

// RemoveStock takes units off the ledger row. Units held by active
// assignments are untouchable, so removals draw from the available pool.
func RemoveStock(product *models.Product, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if product.Qty == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "product is out of stock").
			WithDetails(map[string]any{"unique_id": product.UniqueID})
	}
	if available := product.AvailableQty(); qty > available {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("insufficient available stock: requested %d, available %d", qty, available)).
			WithDetails(map[string]any{
				"unique_id": product.UniqueID,
				"requested": qty,
				"available": available,
			})
	}
	product.Qty -= qty
	syncStatus(product)
	return nil
}

// Reserve moves units from the available pool into the reserved pool.
func Reserve(product *models.Product, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if available := product.AvailableQty(); qty > available {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("insufficient available stock: requested %d, available %d", qty, available)).
			WithDetails(map[string]any{
				"unique_id": product.UniqueID,
				"requested": qty,
				"available": available,
			})
	}
	product.ReservedQty += qty
	return nil
}

// CommitReserved converts a provisional hold into a permanent removal:
// the units leave both the reserved pool and on-hand stock.
func CommitReserved(product *models.Product, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if qty > product.ReservedQty {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("commit of %d exceeds reserved %d", qty, product.ReservedQty))
	}
	product.ReservedQty -= qty
	product.Qty -= qty
	syncStatus(product)
	return nil
}

// ReleaseReserved hands units back from the reserved pool.
func ReleaseReserved(product *models.Product, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if qty > product.ReservedQty {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("release of %d exceeds reserved %d", qty, product.ReservedQty))
	}
	product.ReservedQty -= qty
	return nil
}

func syncStatus(product *models.Product) {
	product.StockStatus = enums.StockStatusForQty(product.Qty)
}
