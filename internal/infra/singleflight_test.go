package infra

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGroup_Do(t *testing.T) {
	var g Group[string, int]

	val, err, shared := g.Do("key", func() (int, error) {
		return 42, nil
	})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
	if shared {
		t.Error("expected shared=false for single call")
	}
}

func TestGroup_DoError(t *testing.T) {
	var g Group[string, int]
	testErr := errors.New("test error")

	val, err, _ := g.Do("key", func() (int, error) {
		return 0, testErr
	})

	if !errors.Is(err, testErr) {
		t.Errorf("expected test error, got %v", err)
	}
	if val != 0 {
		t.Errorf("expected 0, got %d", val)
	}
}

func TestGroup_DoDuplicates(t *testing.T) {
	var g Group[string, int]
	var callCount int32

	var wg sync.WaitGroup
	results := make([]int, 10)
	shared := make([]bool, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			val, _, sh := g.Do("key", func() (int, error) {
				atomic.AddInt32(&callCount, 1)
				time.Sleep(50 * time.Millisecond)
				return 42, nil
			})
			results[idx] = val
			shared[idx] = sh
		}(i)
	}

	wg.Wait()

	// Function should only be called once
	if count := atomic.LoadInt32(&callCount); count != 1 {
		t.Errorf("expected 1 call, got %d", count)
	}

	// All should get the same result
	for i, val := range results {
		if val != 42 {
			t.Errorf("results[%d] = %d, want 42", i, val)
		}
	}
}

func TestGroup_DoDifferentKeys(t *testing.T) {
	var g Group[string, int]
	var callCount int32

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			g.Do(key, func() (int, error) {
				atomic.AddInt32(&callCount, 1)
				time.Sleep(30 * time.Millisecond)
				return i, nil
			})
		}(i)
	}

	wg.Wait()

	// Each key should have its own call
	if count := atomic.LoadInt32(&callCount); count != 3 {
		t.Errorf("expected 3 calls for different keys, got %d", count)
	}
}

func TestGroup_DoSequentialRuns(t *testing.T) {
	var g Group[string, int]
	var callCount int32

	for i := 0; i < 3; i++ {
		val, _, _ := g.Do("key", func() (int, error) {
			return int(atomic.AddInt32(&callCount, 1)), nil
		})
		if val != i+1 {
			t.Errorf("run %d returned %d, want %d", i, val, i+1)
		}
	}

	// Completed calls are forgotten, not cached.
	if count := atomic.LoadInt32(&callCount); count != 3 {
		t.Errorf("expected 3 calls, got %d", count)
	}
}

func TestGroup_Forget(t *testing.T) {
	var g Group[string, int]
	var callCount int32

	g.Do("key", func() (int, error) {
		atomic.AddInt32(&callCount, 1)
		return 1, nil
	})

	g.Forget("key")

	g.Do("key", func() (int, error) {
		atomic.AddInt32(&callCount, 1)
		return 2, nil
	})

	if count := atomic.LoadInt32(&callCount); count != 2 {
		t.Errorf("expected 2 calls after Forget, got %d", count)
	}
}
