package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/socialpulse/socialpulse/internal/ledger"
)

func TestProvisionPicksCurrencyFromCountry(t *testing.T) {
	led := ledger.New(ledger.NewMemoryStore(), nil, nil)
	svc := NewService(led, "NGN")
	ctx := context.Background()

	ownerID := uuid.NewString()
	w, err := svc.Provision(ctx, ownerID, "gh")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if w.Currency != "GHS" {
		t.Fatalf("expected GHS, got %s", w.Currency)
	}

	again, err := svc.Provision(ctx, ownerID, "gh")
	if err != nil {
		t.Fatalf("provision twice: %v", err)
	}
	if again.ID != w.ID {
		t.Fatalf("expected existing wallet %s, got %s", w.ID, again.ID)
	}

	other, err := svc.Provision(ctx, uuid.NewString(), "ZZ")
	if err != nil {
		t.Fatalf("provision unknown country: %v", err)
	}
	if other.Currency != "NGN" {
		t.Fatalf("expected default NGN, got %s", other.Currency)
	}
}

func TestBalanceAndHistory(t *testing.T) {
	led := ledger.New(ledger.NewMemoryStore(), nil, nil)
	svc := NewService(led, "NGN")
	ctx := context.Background()

	ownerID := uuid.NewString()
	w, err := svc.Provision(ctx, ownerID, "NG")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if _, err := led.Credit(ctx, w.ID, decimal.NewFromInt(1000), "dep-1"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := led.Reserve(ctx, w.ID, decimal.NewFromInt(150), "order-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	b, err := svc.Balance(ctx, ownerID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if b.Spendable.String() != "850" || b.Reserved.String() != "150" {
		t.Fatalf("unexpected balance %+v", b)
	}

	entries, err := svc.History(ctx, ownerID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 || entries[0].Op != ledger.OpReserve {
		t.Fatalf("unexpected history %+v", entries)
	}
}

func TestBalanceWithoutWallet(t *testing.T) {
	svc := NewService(ledger.New(ledger.NewMemoryStore(), nil, nil), "NGN")
	if _, err := svc.Balance(context.Background(), uuid.NewString()); !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}
