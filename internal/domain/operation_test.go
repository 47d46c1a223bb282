package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func sampleSale() SalePayload {
	return SalePayload{
		StoreID: "store-1",
		Items: []CartLine{
			{ProductID: "p-1", Name: "Coffee", Quantity: 2, UnitPrice: 350},
		},
		Payments: []Payment{{Method: "cash", Amount: 700}},
		Totals:   Totals{Subtotal: 700, Total: 700},
	}
}

func TestEncodeDecodeTask(t *testing.T) {
	tests := []struct {
		name string
		task SyncTask
		kind Kind
	}{
		{"regular sale", RegularSale{Sale: sampleSale()}, KindRegularSale},
		{"resume held", ResumeHeld{Resume: ResumeHeldPayload{
			HeldSaleID: "held-9",
			Payments:   []Payment{{Method: "card", Amount: 1200, Reference: "auth-1"}},
		}}, KindResumeHeld},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, raw, err := EncodeTask(tt.task)
			if err != nil {
				t.Fatalf("EncodeTask() error = %v", err)
			}
			if kind != tt.kind {
				t.Errorf("kind = %q, want %q", kind, tt.kind)
			}

			got, err := DecodeTask(kind, raw)
			if err != nil {
				t.Fatalf("DecodeTask() error = %v", err)
			}
			if got.Kind() != tt.kind {
				t.Errorf("decoded kind = %q, want %q", got.Kind(), tt.kind)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.task) {
				t.Errorf("decoded task = %+v, want %+v", got, tt.task)
			}
		})
	}
}

func TestDecodeTask_UnknownKind(t *testing.T) {
	_, err := DecodeTask("refund", []byte(`{}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("DecodeTask() error = %v, want ErrUnknownKind", err)
	}
}

func TestEncodeTask_Nil(t *testing.T) {
	if _, _, err := EncodeTask(nil); err == nil {
		t.Error("EncodeTask(nil) should fail")
	}
}

func TestEncodeTask_PointerVariantRejected(t *testing.T) {
	_, _, err := EncodeTask(&RegularSale{Sale: sampleSale()})
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("EncodeTask(*RegularSale) error = %v, want ErrUnknownKind", err)
	}
}

func TestValidateTask(t *testing.T) {
	tests := []struct {
		name    string
		task    SyncTask
		wantErr bool
	}{
		{"sale", RegularSale{Sale: sampleSale()}, false},
		{"nil", nil, true},
		{"nil sale pointer", (*RegularSale)(nil), true},
		{"nil resume pointer", (*ResumeHeld)(nil), true},
		{"sale pointer", &RegularSale{Sale: sampleSale()}, true},
		{"empty sale", RegularSale{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTask(tt.task)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateTask() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("ValidateTask() error = %v, want ErrInvalidPayload", err)
			}
		})
	}
}

func TestCloneTask_SharesNoSlices(t *testing.T) {
	orig := RegularSale{Sale: sampleSale()}
	clone := CloneTask(orig).(RegularSale)

	orig.Sale.Items[0].Quantity = 9
	orig.Sale.Payments[0].Method = "voucher"

	if clone.Sale.Items[0].Quantity != 2 {
		t.Errorf("clone item quantity = %d, want 2", clone.Sale.Items[0].Quantity)
	}
	if clone.Sale.Payments[0].Method != "cash" {
		t.Errorf("clone payment method = %q, want cash", clone.Sale.Payments[0].Method)
	}

	resume := ResumeHeld{Resume: ResumeHeldPayload{HeldSaleID: "h", Payments: []Payment{{Method: "card", Amount: 5}}}}
	op := QueuedOperation{ID: "op-1", Task: resume}.Clone()
	resume.Resume.Payments[0].Amount = 50
	if got := op.Task.(ResumeHeld).Resume.Payments[0].Amount; got != 5 {
		t.Errorf("cloned operation payment = %d, want 5", got)
	}
}

func TestRecord_InvalidStatus(t *testing.T) {
	op := QueuedOperation{ID: "a", Status: StatusPending, Task: RegularSale{Sale: sampleSale()}}
	rec, err := op.ToRecord()
	if err != nil {
		t.Fatalf("ToRecord() error = %v", err)
	}
	rec.Status = "synced"
	if _, err := rec.ToOperation(); err == nil {
		t.Error("ToOperation() should reject unknown status")
	}
}

func TestQueuedOperation_Before(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := QueuedOperation{ID: "b", CreatedAt: base}
	b := QueuedOperation{ID: "a", CreatedAt: base.Add(time.Millisecond)}
	c := QueuedOperation{ID: "c", CreatedAt: base}

	if !a.Before(b) {
		t.Error("earlier createdAt should come first")
	}
	if b.Before(a) {
		t.Error("later createdAt should not come first")
	}
	if !a.Before(c) {
		t.Error("equal createdAt should fall back to id order")
	}
}

func TestPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		task    SyncTask
		wantErr bool
	}{
		{"valid sale", RegularSale{Sale: sampleSale()}, false},
		{"missing store", RegularSale{Sale: func() SalePayload { s := sampleSale(); s.StoreID = ""; return s }()}, true},
		{"no items", RegularSale{Sale: func() SalePayload { s := sampleSale(); s.Items = nil; return s }()}, true},
		{"zero quantity", RegularSale{Sale: func() SalePayload { s := sampleSale(); s.Items[0].Quantity = 0; return s }()}, true},
		{"no payments", RegularSale{Sale: func() SalePayload { s := sampleSale(); s.Payments = nil; return s }()}, true},
		{"valid resume", ResumeHeld{Resume: ResumeHeldPayload{HeldSaleID: "h", Payments: []Payment{{Method: "cash", Amount: 1}}}}, false},
		{"resume without id", ResumeHeld{Resume: ResumeHeldPayload{Payments: []Payment{{Method: "cash", Amount: 1}}}}, true},
		{"negative payment", ResumeHeld{Resume: ResumeHeldPayload{HeldSaleID: "h", Payments: []Payment{{Method: "cash", Amount: -1}}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("Validate() error = %v, want ErrInvalidPayload", err)
			}
		})
	}
}

func TestTally(t *testing.T) {
	ops := []QueuedOperation{
		{Status: StatusPending}, {Status: StatusPending},
		{Status: StatusSyncing}, {Status: StatusFailed},
	}
	got := Tally(ops)
	want := Stats{Length: 4, Pending: 2, Syncing: 1, Failed: 1}
	if got != want {
		t.Errorf("Tally() = %+v, want %+v", got, want)
	}
}

func TestOperationIDContext(t *testing.T) {
	if _, ok := OperationIDFromContext(context.Background()); ok {
		t.Error("empty context should carry no id")
	}
	ctx := ContextWithOperationID(context.Background(), "op-1")
	id, ok := OperationIDFromContext(ctx)
	if !ok || id != "op-1" {
		t.Errorf("OperationIDFromContext() = %q, %v", id, ok)
	}
}
