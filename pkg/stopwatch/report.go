package stopwatch

import "time"

// Report is a serializable view of a StopWatch.
type Report struct {
	ID        string        `json:"id"`
	TaskCount int           `json:"task_count"`
	Total     time.Duration `json:"total"`
	Tasks     []TaskShare   `json:"tasks,omitempty"`
}

type TaskShare struct {
	TaskInfo
	// Percent is the task's share of Total; zero when Total is zero.
	Percent float64 `json:"percent"`
}

// Snapshot captures the completed tasks. A running task is not included.
func (sw *StopWatch) Snapshot() Report {
	r := Report{ID: sw.id, TaskCount: sw.taskCount, Total: sw.total}
	if !sw.keepTaskList {
		return r
	}
	r.Tasks = make([]TaskShare, 0, len(sw.tasks))
	for _, t := range sw.tasks {
		p, _ := sw.percent(t)
		r.Tasks = append(r.Tasks, TaskShare{TaskInfo: t, Percent: p})
	}
	return r
}
