package stopwatch

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrIllegalState is wrapped by every usage-order error.
	ErrIllegalState = errors.New("stopwatch: illegal state")

	ErrAlreadyRunning  = fmt.Errorf("%w: can't start, already running", ErrIllegalState)
	ErrNotRunning      = fmt.Errorf("%w: can't stop, not running", ErrIllegalState)
	ErrNoTasks         = fmt.Errorf("%w: no tasks run", ErrIllegalState)
	ErrTaskListNotKept = errors.New("stopwatch: task info is not being kept")
)

// TaskInfo describes one completed task.
type TaskInfo struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Millis returns the task duration in whole milliseconds.
func (t TaskInfo) Millis() int64 { return t.Duration.Milliseconds() }

// Seconds returns the task duration in seconds.
func (t TaskInfo) Seconds() float64 { return t.Duration.Seconds() }

type Option func(*StopWatch)

// WithKeepTaskList controls whether completed tasks are retained.
// Disable it when timing a very large number of tasks.
func WithKeepTaskList(keep bool) Option {
	return func(sw *StopWatch) { sw.keepTaskList = keep }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(sw *StopWatch) {
		if now != nil {
			sw.now = now
		}
	}
}

type StopWatch struct {
	id           string
	keepTaskList bool
	now          func() time.Time

	tasks []TaskInfo

	running     bool
	currentName string
	startedAt   time.Time

	last      *TaskInfo
	taskCount int
	total     time.Duration
}

func New(id string, opts ...Option) *StopWatch {
	sw := &StopWatch{id: id, keepTaskList: true, now: time.Now}
	for _, o := range opts {
		if o != nil {
			o(sw)
		}
	}
	return sw
}

func (sw *StopWatch) ID() string { return sw.id }

// Start begins timing a task. The name may be empty.
func (sw *StopWatch) Start(name string) error {
	if sw.running {
		return ErrAlreadyRunning
	}
	sw.running = true
	sw.currentName = name
	sw.startedAt = sw.now()
	return nil
}

// Stop ends the running task and records it.
func (sw *StopWatch) Stop() error {
	if !sw.running {
		return ErrNotRunning
	}
	elapsed := sw.now().Sub(sw.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	sw.total += elapsed
	info := TaskInfo{Name: sw.currentName, Duration: elapsed}
	sw.last = &info
	if sw.keepTaskList {
		sw.tasks = append(sw.tasks, info)
	}
	sw.taskCount++
	sw.running = false
	sw.currentName = ""
	return nil
}

func (sw *StopWatch) IsRunning() bool { return sw.running }

// CurrentTaskName returns the running task's name; ok is false when idle.
func (sw *StopWatch) CurrentTaskName() (name string, ok bool) {
	return sw.currentName, sw.running
}

func (sw *StopWatch) LastTaskTimeMillis() (int64, error) {
	if sw.last == nil {
		return 0, fmt.Errorf("%w: can't get last task interval", ErrNoTasks)
	}
	return sw.last.Millis(), nil
}

func (sw *StopWatch) LastTaskName() (string, error) {
	if sw.last == nil {
		return "", fmt.Errorf("%w: can't get last task name", ErrNoTasks)
	}
	return sw.last.Name, nil
}

func (sw *StopWatch) LastTaskInfo() (TaskInfo, error) {
	if sw.last == nil {
		return TaskInfo{}, fmt.Errorf("%w: can't get last task info", ErrNoTasks)
	}
	return *sw.last, nil
}

func (sw *StopWatch) TotalTime() time.Duration { return sw.total }

func (sw *StopWatch) TotalTimeMillis() int64 { return sw.total.Milliseconds() }

func (sw *StopWatch) TotalTimeSeconds() float64 { return sw.total.Seconds() }

func (sw *StopWatch) TaskCount() int { return sw.taskCount }

// TaskInfo returns a copy of the completed tasks in completion order.
func (sw *StopWatch) TaskInfo() ([]TaskInfo, error) {
	if !sw.keepTaskList {
		return nil, ErrTaskListNotKept
	}
	out := make([]TaskInfo, len(sw.tasks))
	copy(out, sw.tasks)
	return out, nil
}

func (sw *StopWatch) ShortSummary() string {
	return fmt.Sprintf("StopWatch '%s': running time (millis) = %d", sw.id, sw.TotalTimeMillis())
}

// PrettyPrint renders one line per task with its share of the total.
func (sw *StopWatch) PrettyPrint() string {
	var b strings.Builder
	b.WriteString(sw.ShortSummary())
	b.WriteByte('\n')
	if !sw.keepTaskList {
		b.WriteString("No task info kept")
		return b.String()
	}
	b.WriteString("-----------------------------------------\n")
	b.WriteString("ms     %     Task name\n")
	b.WriteString("-----------------------------------------\n")
	for _, t := range sw.tasks {
		fmt.Fprintf(&b, "%05d  %s  %s\n", t.Millis(), sw.percentCell(t), t.Name)
	}
	return b.String()
}

func (sw *StopWatch) String() string {
	var b strings.Builder
	b.WriteString(sw.ShortSummary())
	if !sw.keepTaskList {
		b.WriteString("; no task info kept")
		return b.String()
	}
	for _, t := range sw.tasks {
		fmt.Fprintf(&b, "; [%s] took %d", t.Name, t.Millis())
		if p, ok := sw.percent(t); ok {
			fmt.Fprintf(&b, " = %d%%", int64(math.Round(p)))
		}
	}
	return b.String()
}

// percent is defined only when the total is positive.
func (sw *StopWatch) percent(t TaskInfo) (float64, bool) {
	if sw.total <= 0 {
		return 0, false
	}
	return 100 * float64(t.Duration) / float64(sw.total), true
}

func (sw *StopWatch) percentCell(t TaskInfo) string {
	p, ok := sw.percent(t)
	if !ok {
		return "  -  "
	}
	return fmt.Sprintf("%03d%%", int64(math.RoundToEven(p)))
}
