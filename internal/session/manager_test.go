package session

import (
	"testing"
)

func TestManager_CreateAndGet(t *testing.T) {
	manager := NewManager()

	s := manager.Create(newStubTuner(), Config{})
	if s.ID() == "" {
		t.Fatal("Created session has no ID")
	}

	got, ok := manager.Get(s.ID())
	if !ok {
		t.Fatalf("Session %s not found", s.ID())
	}
	if got != s {
		t.Error("Get returned a different session")
	}
}

func TestManager_GeneratesUniqueIDs(t *testing.T) {
	manager := NewManager()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		s := manager.Create(newStubTuner(), Config{})
		if seen[s.ID()] {
			t.Fatalf("Duplicate session ID %s", s.ID())
		}
		seen[s.ID()] = true
	}
}

func TestManager_HonorsConfiguredID(t *testing.T) {
	manager := NewManager()

	s := manager.Create(newStubTuner(), Config{ID: "named-session"})
	if s.ID() != "named-session" {
		t.Errorf("Expected ID named-session, got %s", s.ID())
	}
	if _, ok := manager.Get("named-session"); !ok {
		t.Error("Named session not registered")
	}
}

func TestManager_List(t *testing.T) {
	manager := NewManager()

	if sessions := manager.List(); len(sessions) != 0 {
		t.Fatalf("Expected empty manager, got %d sessions", len(sessions))
	}

	manager.Create(newStubTuner(), Config{ID: "a"})
	manager.Create(newStubTuner(), Config{ID: "b"})

	sessions := manager.List()
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
}

func TestManager_Remove(t *testing.T) {
	manager := NewManager()

	s := manager.Create(newStubTuner(), Config{ID: "doomed"})
	ch := s.Events().Subscribe(s.ID())

	manager.Remove(s.ID())
	if _, ok := manager.Get(s.ID()); ok {
		t.Error("Removed session still registered")
	}

	// Removal tears down the event stream.
	if _, open := <-ch; open {
		t.Error("Subscriber channel should be closed")
	}

	manager.Remove("never-existed")
}

func TestManager_AddRegistersRestored(t *testing.T) {
	manager := NewManager()

	s := New(newStubTuner(), Config{ID: "restored"})
	manager.Add(s)

	if _, ok := manager.Get("restored"); !ok {
		t.Error("Added session not registered")
	}
}
