package systemd

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) send(state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func TestReadyAndStopping(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	n := Notifier{send: rec.send}
	if ok, err := n.Ready("listening on :8080"); !ok || err != nil {
		t.Fatalf("ready ok=%v err=%v", ok, err)
	}
	_, _ = n.Stopping()

	got := rec.snapshot()
	if len(got) != 2 {
		t.Fatalf("states=%q", got)
	}
	if got[0] != "READY=1\nSTATUS=listening on :8080" || got[1] != "STOPPING=1" {
		t.Fatalf("states=%q", got)
	}
}

func TestRunWatchdogSkipsWhenUnhealthy(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	n := Notifier{send: rec.send}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var healthy sync.Mutex
	sick := true
	go func() {
		done <- n.RunWatchdog(ctx, 5*time.Millisecond, func() error {
			healthy.Lock()
			defer healthy.Unlock()
			if sick {
				sick = false
				return errors.New("stuck")
			}
			return nil
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := rec.snapshot(); len(s) >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watchdog: %v", err)
	}

	got := rec.snapshot()
	if len(got) < 2 {
		t.Fatalf("states=%q", got)
	}
	if !strings.HasPrefix(got[0], "STATUS=unhealthy: stuck") || got[1] != "WATCHDOG=1" {
		t.Fatalf("states=%q", got)
	}
}
