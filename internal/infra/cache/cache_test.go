package cache_test

import (
	"testing"
	"time"

	"github.com/edusuite/fee-ledger-go/internal/domain"
	"github.com/edusuite/fee-ledger-go/internal/infra/cache"
)

func TestCache_SetGet(t *testing.T) {
	c := cache.New[[]domain.FeeStructureRow](time.Minute)

	rows := []domain.FeeStructureRow{{ID: "inst-1", StudentID: "stu-1", InstallmentNumber: 1}}
	c.Set("fees:stu-1", rows)

	got, ok := c.Get("fees:stu-1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 1 || got[0].ID != "inst-1" {
		t.Errorf("unexpected cached value: %+v", got)
	}
}

func TestCache_Miss(t *testing.T) {
	c := cache.New[string](time.Minute)

	if _, ok := c.Get("absent"); ok {
		t.Error("expected cache miss")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := cache.New[string](10 * time.Millisecond)

	c.Set("k", "v")
	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to expire")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](time.Minute)

	c.Set("k", "v")
	c.Delete("k")

	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to be gone after delete")
	}
}
