package stopwatch

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

// fakeClock advances by a fixed step after every read.
type fakeClock struct {
	t     time.Time
	steps []time.Duration
}

func (c *fakeClock) now() time.Time {
	cur := c.t
	if len(c.steps) > 0 {
		c.t = c.t.Add(c.steps[0])
		c.steps = c.steps[1:]
	}
	return cur
}

func newClock(steps ...time.Duration) *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0), steps: steps}
}

func TestStartStopOnce(t *testing.T) {
	t.Parallel()
	clk := newClock(120 * time.Millisecond)
	sw := New("once", WithClock(clk.now))

	if err := sw.Start("load"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sw.IsRunning() {
		t.Fatal("expected running")
	}
	if name, ok := sw.CurrentTaskName(); !ok || name != "load" {
		t.Fatalf("CurrentTaskName = %q, %v", name, ok)
	}
	if err := sw.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sw.TaskCount() != 1 {
		t.Fatalf("TaskCount = %d, want 1", sw.TaskCount())
	}
	last, err := sw.LastTaskTimeMillis()
	if err != nil {
		t.Fatalf("LastTaskTimeMillis: %v", err)
	}
	if last != 120 || sw.TotalTimeMillis() != last {
		t.Fatalf("last=%d total=%d, want 120", last, sw.TotalTimeMillis())
	}
	if name, _ := sw.LastTaskName(); name != "load" {
		t.Fatalf("LastTaskName = %q", name)
	}
	if _, ok := sw.CurrentTaskName(); ok {
		t.Fatal("current task should be cleared after Stop")
	}
}

func TestInvalidStateErrors(t *testing.T) {
	t.Parallel()
	sw := New("bad")

	if err := sw.Stop(); !errors.Is(err, ErrNotRunning) || !errors.Is(err, ErrIllegalState) {
		t.Fatalf("Stop without Start: %v", err)
	}
	if _, err := sw.LastTaskName(); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("LastTaskName before any task: %v", err)
	}
	if _, err := sw.LastTaskTimeMillis(); !errors.Is(err, ErrNoTasks) {
		t.Fatalf("LastTaskTimeMillis before any task: %v", err)
	}
	if _, err := sw.LastTaskInfo(); !errors.Is(err, ErrNoTasks) {
		t.Fatalf("LastTaskInfo before any task: %v", err)
	}

	if err := sw.Start("a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sw.Start("b"); !errors.Is(err, ErrAlreadyRunning) || !errors.Is(err, ErrIllegalState) {
		t.Fatalf("double Start: %v", err)
	}
	if name, _ := sw.CurrentTaskName(); name != "a" {
		t.Fatalf("failed Start must not replace current task, got %q", name)
	}
}

func TestTaskListNotKept(t *testing.T) {
	t.Parallel()
	clk := newClock(10*time.Millisecond, 0, 30*time.Millisecond)
	sw := New("lean", WithClock(clk.now), WithKeepTaskList(false))
	for _, n := range []string{"a", "b"} {
		_ = sw.Start(n)
		_ = sw.Stop()
	}
	if sw.TaskCount() != 2 {
		t.Fatalf("TaskCount = %d", sw.TaskCount())
	}
	if _, err := sw.TaskInfo(); !errors.Is(err, ErrTaskListNotKept) {
		t.Fatalf("TaskInfo: %v", err)
	}
	if name, _ := sw.LastTaskName(); name != "b" {
		t.Fatalf("last task = %q", name)
	}
	if !strings.HasSuffix(sw.PrettyPrint(), "No task info kept") {
		t.Fatalf("PrettyPrint = %q", sw.PrettyPrint())
	}
	if !strings.HasSuffix(sw.String(), "; no task info kept") {
		t.Fatalf("String = %q", sw.String())
	}
}

func TestPercentagesSumToHundred(t *testing.T) {
	t.Parallel()
	clk := newClock(
		100*time.Millisecond, 0,
		200*time.Millisecond, 0,
		700*time.Millisecond,
	)
	sw := New("mix", WithClock(clk.now))
	for _, n := range []string{"parse", "resolve", "render"} {
		if err := sw.Start(n); err != nil {
			t.Fatal(err)
		}
		if err := sw.Stop(); err != nil {
			t.Fatal(err)
		}
	}
	if sw.TotalTimeMillis() != 1000 {
		t.Fatalf("total = %d", sw.TotalTimeMillis())
	}

	var sum float64
	for _, ts := range sw.Snapshot().Tasks {
		sum += ts.Percent
	}
	if math.Abs(sum-100) > 0.5 {
		t.Fatalf("percent sum = %f", sum)
	}

	out := sw.PrettyPrint()
	for _, want := range []string{"00100  010%  parse", "00200  020%  resolve", "00700  070%  render"} {
		if !strings.Contains(out, want) {
			t.Fatalf("PrettyPrint missing %q:\n%s", want, out)
		}
	}
	if got := sw.String(); !strings.Contains(got, "[render] took 700 = 70%") {
		t.Fatalf("String = %q", got)
	}
}

func TestZeroTotalOmitsPercent(t *testing.T) {
	t.Parallel()
	clk := newClock()
	sw := New("zero", WithClock(clk.now))
	_ = sw.Start("noop")
	_ = sw.Stop()

	if strings.Contains(sw.String(), "%") {
		t.Fatalf("String should not render a percentage: %q", sw.String())
	}
	if !strings.Contains(sw.PrettyPrint(), "00000    -    noop") {
		t.Fatalf("PrettyPrint = %q", sw.PrettyPrint())
	}
}
