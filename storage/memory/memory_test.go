package memory

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/imovelprime/primegate/storage"
)

func TestMemoryLedger(t *testing.T) {
	l := NewLedger()
	authority := "ca-1"

	t.Run("ReserveAndGet", func(t *testing.T) {
		rec := &storage.IssuanceRecord{Serial: "01", Kind: storage.KindCA, Subject: "CN=ImovelPrime-CA"}
		if err := l.Reserve(authority, rec); err != nil {
			t.Fatalf("Reserve failed: %v", err)
		}

		got, err := l.Get(authority, "01")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Subject != rec.Subject || got.Kind != rec.Kind {
			t.Errorf("Get returned wrong record: %+v", got)
		}

		// Test isolation (cloning)
		got.Subject = "mutated"
		again, _ := l.Get(authority, "01")
		if again.Subject != rec.Subject {
			t.Error("stored record was mutated through a returned copy")
		}
	})

	t.Run("Duplicate", func(t *testing.T) {
		err := l.Reserve(authority, &storage.IssuanceRecord{Serial: "01"})
		if !errors.Is(err, storage.ErrSerialExists) {
			t.Errorf("expected ErrSerialExists, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := l.Get(authority, "02"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListSorted", func(t *testing.T) {
		for _, s := range []string{"05", "03"} {
			if err := l.Reserve(authority, &storage.IssuanceRecord{Serial: s}); err != nil {
				t.Fatalf("Reserve failed: %v", err)
			}
		}
		recs, err := l.List(authority)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		var got []string
		for _, r := range recs {
			got = append(got, r.Serial)
		}
		if fmt.Sprint(got) != "[01 03 05]" {
			t.Errorf("unexpected order: %v", got)
		}
	})
}

func TestMemoryLedgerConcurrentReserve(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Reserve("ca", &storage.IssuanceRecord{Serial: "aa"}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("expected exactly one successful reservation, got %d", wins)
	}
}
