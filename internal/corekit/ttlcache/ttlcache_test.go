package ttlcache

import (
	"sync"
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	s := New[string, int](time.Hour)
	defer s.Close()

	s.Set("a", 1, time.Minute)
	got, ok := s.Get("a")
	if !ok || got != 1 {
		t.Fatalf("Get(a) = (%d, %v), want (1, true)", got, ok)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := New[string, int](time.Hour)
	defer s.Close()

	if _, ok := s.Get("missing"); ok {
		t.Fatal("Get(missing) = true, want false")
	}
}

func TestGetExpiredEntryIsMiss(t *testing.T) {
	s := New[string, int](time.Hour)
	defer s.Close()

	s.Set("a", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := s.Get("a"); ok {
		t.Fatal("Get(a) after TTL expiry = true, want false")
	}
	if s.Has("a") {
		t.Fatal("Has(a) after TTL expiry = true, want false")
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	s := New[string, int](time.Hour)
	defer s.Close()

	s.Set("a", 1, time.Minute)
	if !s.Delete("a") {
		t.Fatal("Delete(a) = false, want true")
	}
	if s.Delete("a") {
		t.Fatal("second Delete(a) = true, want false")
	}
}

func TestLenCountsOnlyUnexpired(t *testing.T) {
	s := New[string, int](time.Hour)
	defer s.Close()

	s.Set("a", 1, time.Minute)
	s.Set("b", 2, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if got := s.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
}

func TestForEachVisitsOnlyUnexpired(t *testing.T) {
	s := New[string, int](time.Hour)
	defer s.Close()

	s.Set("a", 1, time.Minute)
	s.Set("b", 2, time.Minute)
	s.Set("c", 3, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	visited := make(map[string]int)
	s.ForEach(func(key string, value int) bool {
		visited[key] = value
		return true
	})
	if len(visited) != 2 {
		t.Fatalf("ForEach visited %d entries, want 2", len(visited))
	}
	if _, ok := visited["c"]; ok {
		t.Fatal("ForEach visited expired entry c")
	}
}

func TestForEachStopsEarly(t *testing.T) {
	s := New[string, int](time.Hour)
	defer s.Close()

	s.Set("a", 1, time.Minute)
	s.Set("b", 2, time.Minute)

	count := 0
	s.ForEach(func(key string, value int) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("ForEach visited %d entries after early stop, want 1", count)
	}
}

func TestRefreshExtendsTTL(t *testing.T) {
	s := New[string, int](time.Hour)
	defer s.Close()

	s.Set("a", 1, 10*time.Millisecond)
	if !s.Refresh("a", time.Minute) {
		t.Fatal("Refresh(a) = false, want true")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := s.Get("a"); !ok {
		t.Fatal("Get(a) after Refresh = false, want true")
	}
}

func TestRefreshMissingKeyFails(t *testing.T) {
	s := New[string, int](time.Hour)
	defer s.Close()

	if s.Refresh("missing", time.Minute) {
		t.Fatal("Refresh(missing) = true, want false")
	}
}

func TestClearEmptiesStore(t *testing.T) {
	s := New[string, int](time.Hour)
	defer s.Close()

	s.Set("a", 1, time.Minute)
	s.Set("b", 2, time.Minute)
	s.Clear()

	if got := s.Len(); got != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", got)
	}
}

func TestBackgroundCleanupEvictsExpiredEntries(t *testing.T) {
	s := New[string, int](5 * time.Millisecond)
	defer s.Close()

	s.Set("a", 1, time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.Len() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expired entry was never evicted by the cleanup loop")
}

func TestNewWithEvictFiresOnBackgroundExpiry(t *testing.T) {
	var mu sync.Mutex
	var evictedKey string
	var evictedVal int

	s := NewWithEvict[string, int](5*time.Millisecond, func(key string, value int) {
		mu.Lock()
		evictedKey, evictedVal = key, value
		mu.Unlock()
	})
	defer s.Close()

	s.Set("a", 42, time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		k := evictedKey
		mu.Unlock()
		if k == "a" {
			mu.Lock()
			v := evictedVal
			mu.Unlock()
			if v != 42 {
				t.Fatalf("onEvict value = %d, want 42", v)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("onEvict callback was never invoked for the expired entry")
}

func TestNewWithEvictNotCalledOnManualDelete(t *testing.T) {
	called := false
	s := NewWithEvict[string, int](time.Hour, func(key string, value int) {
		called = true
	})
	defer s.Close()

	s.Set("a", 1, time.Minute)
	s.Delete("a")
	time.Sleep(10 * time.Millisecond)

	if called {
		t.Fatal("onEvict fired on manual Delete, want fire only on background expiry")
	}
}

func TestCloseStopsCleanupLoopAndClears(t *testing.T) {
	s := New[string, int](time.Hour)
	s.Set("a", 1, time.Minute)
	s.Close()

	if got := s.Len(); got != 0 {
		t.Fatalf("Len() after Close = %d, want 0", got)
	}
}
