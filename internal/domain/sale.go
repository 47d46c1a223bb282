package domain

import (
	"fmt"
	"slices"
	"time"
)

// Money is an amount in the store currency's minor units (cents).
type Money int64

// CartLine is a single product line captured at checkout.
type CartLine struct {
	// ProductID references the product in the remote catalogue
	ProductID string `json:"product_id"`

	// Name is the product name as displayed when the sale was rung up
	Name string `json:"name,omitempty"`

	// Quantity is the number of units sold
	Quantity int `json:"quantity"`

	// UnitPrice is the price per unit at the time of sale
	UnitPrice Money `json:"unit_price"`
}

// LineTotal returns Quantity * UnitPrice.
func (l CartLine) LineTotal() Money {
	return Money(l.Quantity) * l.UnitPrice
}

// Payment is a tender applied to a sale (cash, card, voucher...).
type Payment struct {
	Method    string `json:"method"`
	Amount    Money  `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

// Totals are the computed amounts shown to the customer at checkout.
// They are captured, not recomputed, on replay.
type Totals struct {
	Subtotal Money `json:"subtotal"`
	Discount Money `json:"discount"`
	Tax      Money `json:"tax"`
	Total    Money `json:"total"`
}

// SalePayload is the self-contained snapshot needed to submit a new sale.
type SalePayload struct {
	StoreID    string     `json:"store_id"`
	CustomerID string     `json:"customer_id,omitempty"`
	Items      []CartLine `json:"items"`
	Payments   []Payment  `json:"payments"`
	Discount   Money      `json:"discount"`
	Notes      string     `json:"notes,omitempty"`
	Totals     Totals     `json:"totals"`
}

// Validate checks the snapshot is replayable on its own.
func (p SalePayload) Validate() error {
	if p.StoreID == "" {
		return invalidPayload("store_id is required")
	}
	if len(p.Items) == 0 {
		return invalidPayload("at least one item is required")
	}
	for _, it := range p.Items {
		if it.ProductID == "" {
			return invalidPayload("item product_id is required")
		}
		if it.Quantity <= 0 {
			return invalidPayload("item quantity must be positive")
		}
	}
	return validatePayments(p.Payments)
}

// Clone returns a copy with its own Items and Payments.
func (p SalePayload) Clone() SalePayload {
	p.Items = slices.Clone(p.Items)
	p.Payments = slices.Clone(p.Payments)
	return p
}

// ResumeHeldPayload completes a transaction that was parked on the server.
type ResumeHeldPayload struct {
	HeldSaleID string    `json:"held_sale_id"`
	Payments   []Payment `json:"payments"`
}

// Validate checks the snapshot is replayable on its own.
func (p ResumeHeldPayload) Validate() error {
	if p.HeldSaleID == "" {
		return invalidPayload("held_sale_id is required")
	}
	return validatePayments(p.Payments)
}

// Clone returns a copy with its own Payments.
func (p ResumeHeldPayload) Clone() ResumeHeldPayload {
	p.Payments = slices.Clone(p.Payments)
	return p
}

func validatePayments(payments []Payment) error {
	if len(payments) == 0 {
		return invalidPayload("at least one payment is required")
	}
	for _, p := range payments {
		if p.Method == "" {
			return invalidPayload("payment method is required")
		}
		if p.Amount < 0 {
			return invalidPayload("payment amount must not be negative")
		}
	}
	return nil
}

// SaleRecord is what the remote service returns once a sale is committed.
type SaleRecord struct {
	ID        string    `json:"id"`
	Number    string    `json:"number,omitempty"`
	Total     Money     `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

func invalidPayload(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, reason)
}
