package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("p1", nil)
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.PersonaID != "p1" || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after End error = %v, want ErrNotFound", err)
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", m.ActiveCount())
	}
}

func TestManagerRecordSend(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("p1", nil)
	for i := 0; i < 2; i++ {
		if err := m.RecordSend(s.ID); err != nil {
			t.Fatalf("RecordSend() error = %v", err)
		}
	}
	got, _ := m.Get(s.ID)
	if got.MessagesSent != 2 {
		t.Fatalf("MessagesSent = %d, want 2", got.MessagesSent)
	}
	if err := m.RecordSend("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RecordSend(missing) error = %v, want ErrNotFound", err)
	}
}

func TestManagerListOldestFirst(t *testing.T) {
	m := NewManager(time.Minute)
	a := m.Create("p1", nil)
	time.Sleep(2 * time.Millisecond)
	b := m.Create("p2", nil)

	list := m.List()
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("List() = %+v, want [%s %s]", list, a.ID, b.ID)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	var canceled, hooked atomic.Int32
	m.SetExpireHook(func(s *Session) {
		if s.Status == StatusEnded {
			hooked.Add(1)
		}
	})
	s := m.Create("p1", func() { canceled.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound after expiry", err)
	}
	if canceled.Load() != 1 || hooked.Load() != 1 {
		t.Fatalf("cancel/hook calls = %d/%d, want 1/1", canceled.Load(), hooked.Load())
	}
}
