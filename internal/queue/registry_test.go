package queue

import (
	"sync"
	"testing"
)

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry()

	q1 := r.GetOrCreate("guild1")
	if q1 == nil {
		t.Fatal("GetOrCreate returned nil")
	}
	if q1.GuildID() != "guild1" {
		t.Errorf("Expected guild1, got %s", q1.GuildID())
	}

	q2 := r.GetOrCreate("guild1")
	if q1 != q2 {
		t.Error("Expected the same queue for the same guild")
	}

	other := r.GetOrCreate("guild2")
	if other == q1 {
		t.Error("Expected distinct queues per guild")
	}
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Get("guild1"); ok {
		t.Error("Expected no queue before creation")
	}
	created := r.GetOrCreate("guild1")
	got, ok := r.Get("guild1")
	if !ok || got != created {
		t.Error("Expected Get to return the created queue")
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("guild1")
	r.Remove("guild1")
	if _, ok := r.Get("guild1"); ok {
		t.Error("Expected queue removed")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.GetOrCreate("guild1")
				r.GetOrCreate("guild2")
			}
		}()
	}
	wg.Wait()

	if len(r.All()) != 2 {
		t.Errorf("Expected 2 queues, got %d", len(r.All()))
	}
}
