package ports

import (
	"context"

	"github.com/bft-labs/tillsync/internal/domain"
)

// Gateway submits sales to the remote service.
// A delivered-and-refused request returns *domain.GatewayError; a request
// that never got an answer wraps domain.ErrGatewayUnreachable.
type Gateway interface {
	SubmitSale(ctx context.Context, sale domain.SalePayload) (domain.SaleRecord, error)
	ResumeHeldTransaction(ctx context.Context, heldSaleID string, payments []domain.Payment) (domain.SaleRecord, error)
}
