package memory

import (
	"context"
	"sync"
	"testing"

	"immunocore/internal/infra/persistence/storetest"
	"immunocore/pkg/domain"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, NewStore())
}

func TestClosedStoreRejectsCalls(t *testing.T) {
	s := NewStore()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	ctx := context.Background()
	if _, err := s.Version(ctx); err == nil {
		t.Fatal("expected version error after close")
	}
	if _, err := s.QuerySamples(ctx, domain.NewFilterSpec()); err == nil {
		t.Fatal("expected query error after close")
	}
	if err := s.Rebuild(ctx, nil, nil); err == nil {
		t.Fatal("expected rebuild error after close")
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStore().ListFrequencies(ctx); err == nil {
		t.Fatal("expected canceled context error")
	}
}

func TestRebuildIsAtomicForReaders(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	records := storetest.Fixtures()
	subset := records[:1]

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			batch := records
			if i%2 == 1 {
				batch = subset
			}
			if err := s.Rebuild(ctx, batch, storetest.Frequencies(batch)); err != nil {
				t.Errorf("rebuild: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			got, err := s.QuerySamples(ctx, domain.NewFilterSpec())
			if err != nil {
				t.Errorf("query: %v", err)
				return
			}
			if n := len(got); n != 0 && n != len(subset) && n != len(records) {
				t.Errorf("observed partial rebuild with %d samples", n)
				return
			}
		}
	}()
	wg.Wait()
}
