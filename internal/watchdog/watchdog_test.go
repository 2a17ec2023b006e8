package watchdog

import (
	"context"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func listen(t *testing.T) (string, *net.UnixConn) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return path, conn
}

func read(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	buf := make([]byte, 64)
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(buf[:n])
}

func TestNotifyStates(t *testing.T) {
	path, conn := listen(t)
	n := NewNotifierAt(path)

	if err := n.Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if got := read(t, conn); got != StateReady {
		t.Errorf("got %q, want %q", got, StateReady)
	}
	if err := n.Stopping(); err != nil {
		t.Fatalf("Stopping: %v", err)
	}
	if got := read(t, conn); got != StateStopping {
		t.Errorf("got %q, want %q", got, StateStopping)
	}
}

func TestNotifyWithoutSocket(t *testing.T) {
	n := NewNotifierAt("")
	if n.Enabled() {
		t.Error("expected disabled notifier")
	}
	if err := n.Ready(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNotifyMissingSocket(t *testing.T) {
	n := NewNotifierAt(filepath.Join(t.TempDir(), "absent.sock"))
	if err := n.Ready(); err == nil {
		t.Error("expected dial error")
	}
}

func TestKickerRun(t *testing.T) {
	path, conn := listen(t)
	k := NewKicker(NewNotifierAt(path), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		k.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		if got := read(t, conn); got != StateWatchdog {
			t.Errorf("kick %d: got %q", i, got)
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestKickerSkipsWhenUnhealthy(t *testing.T) {
	path, conn := listen(t)
	k := NewKicker(NewNotifierAt(path), nil)
	var checks atomic.Int32
	k.Healthy = func() bool {
		checks.Add(1)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	k.Run(ctx, 5*time.Millisecond)

	if checks.Load() == 0 {
		t.Error("health check never consulted")
	}
	conn.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	if _, err := conn.Read(make([]byte, 16)); err == nil {
		t.Error("kick sent while unhealthy")
	}
}

func TestKickerDisabledReturns(t *testing.T) {
	k := NewKicker(NewNotifierAt(""), nil)
	done := make(chan struct{})
	go func() {
		k.Run(context.Background(), time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately without a socket")
	}
}
