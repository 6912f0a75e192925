// Copyright 2025 Joseph Cumines

package handle

import (
	"strconv"
	"strings"
	"sync"
	"testing"
)

func TestCache_PutGet(t *testing.T) {
	c := NewCache[string](ElementPrefix)

	id := c.Put("button")
	if id != "elem_1" {
		t.Errorf("first id = %q, want elem_1", id)
	}

	got, ok := c.Get(id)
	if !ok {
		t.Fatalf("Get(%q) not found", id)
	}
	if got != "button" {
		t.Errorf("Get(%q) = %q, want button", id, got)
	}
}

func TestCache_GetUnknown(t *testing.T) {
	c := NewCache[int](ElementPrefix)

	tests := []string{"elem_999", "", "elem_", "proc_1"}
	for _, id := range tests {
		t.Run(id, func(t *testing.T) {
			if _, ok := c.Get(id); ok {
				t.Errorf("Get(%q) found, want not found", id)
			}
		})
	}
}

func TestCache_IdsMonotonic(t *testing.T) {
	c := NewCache[int](ElementPrefix)

	prev := uint64(0)
	for i := 0; i < 50; i++ {
		id := c.Put(i)
		if !strings.HasPrefix(id, ElementPrefix) {
			t.Fatalf("id %q missing prefix", id)
		}
		n, err := strconv.ParseUint(strings.TrimPrefix(id, ElementPrefix), 10, 64)
		if err != nil {
			t.Fatalf("id %q has non-numeric suffix: %v", id, err)
		}
		if n <= prev {
			t.Fatalf("id %q not greater than previous %d", id, prev)
		}
		prev = n
	}
}

func TestCache_RemoveDoesNotReuse(t *testing.T) {
	c := NewCache[string](ElementPrefix)

	first := c.Put("a")
	c.Remove(first)

	if _, ok := c.Get(first); ok {
		t.Errorf("Get(%q) after Remove found, want not found", first)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}

	second := c.Put("b")
	if second == first {
		t.Errorf("id %q reissued after Remove", second)
	}
	if c.Issued() != 2 {
		t.Errorf("Issued() = %d, want 2", c.Issued())
	}
}

func TestCache_RemoveUnknown(t *testing.T) {
	c := NewCache[string](ElementPrefix)
	c.Put("a")
	c.Remove("elem_42")
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCache_ConcurrentPutUnique(t *testing.T) {
	c := NewCache[int](ElementPrefix)

	const goroutines = 16
	const perGoroutine = 200

	ids := make(chan string, goroutines*perGoroutine)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				id := c.Put(g*perGoroutine + i)
				if _, ok := c.Get(id); !ok {
					t.Errorf("Get(%q) immediately after Put not found", id)
				}
				ids <- id
			}
		}(g)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, goroutines*perGoroutine)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
	if len(seen) != goroutines*perGoroutine {
		t.Errorf("got %d unique ids, want %d", len(seen), goroutines*perGoroutine)
	}
	if c.Len() != goroutines*perGoroutine {
		t.Errorf("Len() = %d, want %d", c.Len(), goroutines*perGoroutine)
	}
}
