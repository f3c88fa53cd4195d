package cmap

import (
	"sort"
	"sync"
	"testing"
)

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{1, 1},
		{8, 8},
		{64, 64},
		{0, DefaultShardCount},
		{-4, DefaultShardCount},
		{12, DefaultShardCount},
	}
	for _, tt := range tests {
		if got := len(NewWithShards[string, int](tt.in).shards); got != tt.want {
			t.Errorf("NewWithShards(%d) shards = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMap_Basic(t *testing.T) {
	m := New[string, int]()

	if _, ok := m.Get("a"); ok {
		t.Error("Get() on an empty map found a value")
	}
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("a", 3)
	if v, ok := m.Get("a"); !ok || v != 3 {
		t.Errorf("Get(a) = %d, %v; want 3, true", v, ok)
	}
	if n := m.Count(); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	m.Delete("a")
	m.Delete("missing")
	if _, ok := m.Get("a"); ok {
		t.Error("Get(a) after Delete found a value")
	}

	if v, ok := m.Pop("b"); !ok || v != 2 {
		t.Errorf("Pop(b) = %d, %v; want 2, true", v, ok)
	}
	if _, ok := m.Pop("b"); ok {
		t.Error("second Pop(b) found a value")
	}
	if n := m.Count(); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestMap_GetOrSet(t *testing.T) {
	m := New[int, string]()
	if v, loaded := m.GetOrSet(1, "first"); loaded || v != "first" {
		t.Errorf("GetOrSet() = %q, %v; want first, false", v, loaded)
	}
	if v, loaded := m.GetOrSet(1, "second"); !loaded || v != "first" {
		t.Errorf("GetOrSet() = %q, %v; want first, true", v, loaded)
	}
}

func TestMap_RangeValues(t *testing.T) {
	m := NewWithShards[int, int](4)
	for i := 0; i < 100; i++ {
		m.Set(i, i*10)
	}

	seen := 0
	m.Range(func(k, v int) bool {
		if v != k*10 {
			t.Errorf("Range() gave %d -> %d", k, v)
		}
		seen++
		return true
	})
	if seen != 100 {
		t.Errorf("Range() visited %d entries, want 100", seen)
	}

	stopped := 0
	m.Range(func(int, int) bool {
		stopped++
		return stopped < 5
	})
	if stopped != 5 {
		t.Errorf("Range() continued after false, visited %d", stopped)
	}

	values := m.Values()
	sort.Ints(values)
	if len(values) != 100 || values[0] != 0 || values[99] != 990 {
		t.Errorf("Values() = %d entries, first %d", len(values), values[0])
	}
}

func TestMap_Concurrent(t *testing.T) {
	m := New[int, int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := g*1000 + i
				m.Set(key, i)
				if _, ok := m.Get(key); !ok {
					t.Errorf("Get(%d) missing right after Set", key)
				}
				m.GetOrSet(i, g)
				m.Values()
			}
		}(g)
	}
	wg.Wait()
	if n := m.Count(); n != 8*500 {
		t.Errorf("Count() = %d, want %d", n, 8*500)
	}
}
