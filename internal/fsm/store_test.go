package fsm

import (
	"sync"
	"testing"
)

func TestStoreSetGetClear(t *testing.T) {
	s := NewStore()

	if s.Get(1) != nil {
		t.Fatal("пустое хранилище должно возвращать nil")
	}

	s.Set(1, "reg_waiting_username", "data")
	state := s.Get(1)
	if state == nil || state.Name != "reg_waiting_username" || state.Data != "data" {
		t.Fatalf("неверное состояние: %+v", state)
	}

	// новый шаг заменяет старый
	s.Set(1, "reg_waiting_email", nil)
	if got := s.Get(1).Name; got != "reg_waiting_email" {
		t.Errorf("ожидался reg_waiting_email, получено %q", got)
	}

	// соседний чат не затронут
	if s.Get(2) != nil {
		t.Error("чужой чат не должен видеть состояние")
	}

	s.Clear(1)
	if s.Get(1) != nil {
		t.Error("после Clear состояние должно исчезнуть")
	}

	// Clear несуществующего чата не паникует
	s.Clear(42)
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.Set(id, "dev_waiting_name", id)
			_ = s.Get(id)
			s.Clear(id)
		}(int64(i))
	}
	wg.Wait()
}
