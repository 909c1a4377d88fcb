package session

import "testing"

func TestRegistryRejectsDuplicateID(t *testing.T) {
	r := NewRegistry()

	if err := r.Add(newSession("s1", "owner", "")); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if err := r.Add(newSession("s1", "other", "")); err != ErrSessionExists {
		t.Errorf("duplicate add returned %v, want ErrSessionExists", err)
	}
	if r.Len() != 1 {
		t.Errorf("registry holds %d sessions, want 1", r.Len())
	}
}

func TestRegistryRemoveThenReAdd(t *testing.T) {
	r := NewRegistry()
	s := newSession("s1", "owner", "")

	if err := r.Add(s); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	removed, ok := r.Remove("s1")
	if !ok || removed != s {
		t.Fatal("remove did not return the registered handle")
	}
	if _, ok := r.Get("s1"); ok {
		t.Error("session still visible after remove")
	}

	// The ID frees up immediately
	if err := r.Add(newSession("s1", "owner", "")); err != nil {
		t.Errorf("re-add after remove failed: %v", err)
	}
}

func TestRegistryContainsTracksExactHandle(t *testing.T) {
	r := NewRegistry()
	first := newSession("s1", "owner", "")

	if err := r.Add(first); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !r.Contains(first) {
		t.Error("Contains false for registered handle")
	}

	r.Remove("s1")
	second := newSession("s1", "owner", "")
	if err := r.Add(second); err != nil {
		t.Fatalf("re-add failed: %v", err)
	}

	// The stale handle must not match the replacement
	if r.Contains(first) {
		t.Error("Contains true for stale handle")
	}
	if !r.Contains(second) {
		t.Error("Contains false for current handle")
	}
}

func TestRegistryListSnapshot(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		if err := r.Add(newSession(id, "owner", "")); err != nil {
			t.Fatalf("add %s failed: %v", id, err)
		}
	}
	if got := len(r.List()); got != 3 {
		t.Errorf("List returned %d sessions, want 3", got)
	}
}
