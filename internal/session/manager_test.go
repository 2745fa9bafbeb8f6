package session

import (
	"strings"
	"testing"
	"time"

	"github.com/acolita/pty-shell-mcp/internal/pty"
)

func TestManager_CreateAndGet(t *testing.T) {
	m := NewManager(4)

	sess, err := m.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(sess.ID, "sess_") {
		t.Errorf("ID = %q, want sess_ prefix", sess.ID)
	}
	if sess.Engine == nil {
		t.Fatal("Engine is nil")
	}

	got, err := m.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != sess {
		t.Error("Get() returned a different session")
	}
}

func TestManager_GetUnknown(t *testing.T) {
	m := NewManager(4)
	if _, err := m.Get("sess_missing"); err == nil {
		t.Error("Get(unknown) succeeded, want error")
	}
}

func TestManager_MaxSessions(t *testing.T) {
	m := NewManager(2)
	for i := 0; i < 2; i++ {
		if _, err := m.Create(); err != nil {
			t.Fatalf("Create() #%d error = %v", i, err)
		}
	}
	if _, err := m.Create(); err == nil {
		t.Error("Create() beyond limit succeeded, want error")
	}

	// Closing one frees a slot.
	ids := m.List()
	if err := m.Close(ids[0]); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := m.Create(); err != nil {
		t.Errorf("Create() after close error = %v", err)
	}
}

func TestManager_CloseRemovesSession(t *testing.T) {
	m := NewManager(4)
	sess, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Close(sess.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := m.Get(sess.ID); err == nil {
		t.Error("Get() after Close succeeded, want error")
	}
	if err := m.Close(sess.ID); err == nil {
		t.Error("second Close() succeeded, want error")
	}
}

func TestManager_CloseKillsActiveRun(t *testing.T) {
	m := NewManager(4)
	sess, err := m.Create()
	if err != nil {
		t.Fatal(err)
	}

	fut, err := sess.Engine.Start(pty.RunConfig{Command: "sleep 5"}, nil, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	if err := m.Close(sess.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	res, err := fut.Wait()
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if !res.Cancelled {
		t.Error("Cancelled = false after Close, want true")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("close took %v, want prompt run termination", elapsed)
	}
}

func TestManager_ListSorted(t *testing.T) {
	m := NewManager(8)
	for i := 0; i < 3; i++ {
		if _, err := m.Create(); err != nil {
			t.Fatal(err)
		}
	}

	ids := m.List()
	if len(ids) != 3 || m.Count() != 3 {
		t.Fatalf("List() = %v, Count() = %d, want 3 sessions", ids, m.Count())
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Errorf("List() not sorted: %v", ids)
		}
	}
}

func TestManager_SetMaxSessions(t *testing.T) {
	m := NewManager(1)
	if _, err := m.Create(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(); err == nil {
		t.Fatal("Create() beyond limit succeeded, want error")
	}

	m.SetMaxSessions(2)
	if _, err := m.Create(); err != nil {
		t.Errorf("Create() after raising limit error = %v", err)
	}
}
