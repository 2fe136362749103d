package tracing

import (
	"sort"
	"sync"

	"github.com/sarchlab/tilesim/sim"
)

// taskTimer pairs the start and the end of the tasks that pass a filter and
// hands every finished task to done. done runs with the lock held.
type taskTimer struct {
	timeTeller sim.TimeTeller
	filter     TaskFilter
	lock       sync.Mutex
	inflight   map[string]Task
	done       func(task Task, duration sim.VTimeInSec)
}

func (t *taskTimer) setup(
	timeTeller sim.TimeTeller,
	filter TaskFilter,
	done func(task Task, duration sim.VTimeInSec),
) {
	t.timeTeller = timeTeller
	t.filter = filter
	t.inflight = make(map[string]Task)
	t.done = done
}

// StartTask records the start time of a task.
func (t *taskTimer) StartTask(task Task) {
	if !t.filter(task) {
		return
	}

	task.StartTime = t.timeTeller.CurrentTime()

	t.lock.Lock()
	t.inflight[task.ID] = task
	t.lock.Unlock()
}

// StepTask does nothing.
func (t *taskTimer) StepTask(_ Task) {}

// EndTask finishes a task that was started.
func (t *taskTimer) EndTask(task Task) {
	now := t.timeTeller.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	started, ok := t.inflight[task.ID]
	if !ok {
		return
	}

	delete(t.inflight, task.ID)
	t.done(started, now-started.StartTime)
}

// NumInflightTasks returns the number of tasks that started but have not
// ended.
func (t *taskTimer) NumInflightTasks() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.inflight)
}

// TotalTimeTracer adds up the time spent on the tasks that pass a filter,
// overall and per location. Overlapping tasks are added together, so the
// total of a directory is its transaction occupancy rather than wall time.
type TotalTimeTracer struct {
	taskTimer

	totalTime  sim.VTimeInSec
	byLocation map[string]sim.VTimeInSec
}

// NewTotalTimeTracer creates a new TotalTimeTracer.
func NewTotalTimeTracer(
	timeTeller sim.TimeTeller,
	filter TaskFilter,
) *TotalTimeTracer {
	t := &TotalTimeTracer{
		byLocation: make(map[string]sim.VTimeInSec),
	}

	t.setup(timeTeller, filter, func(task Task, d sim.VTimeInSec) {
		t.totalTime += d
		t.byLocation[task.Where] += d
	})

	return t
}

// TotalTime returns the time spent on all the finished tasks.
func (t *TotalTimeTracer) TotalTime() sim.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.totalTime
}

// TotalTimeAt returns the time spent on the finished tasks of a location.
func (t *TotalTimeTracer) TotalTimeAt(where string) sim.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.byLocation[where]
}

// Locations returns the locations that finished at least one task, sorted.
func (t *TotalTimeTracer) Locations() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	locations := make([]string, 0, len(t.byLocation))
	for where := range t.byLocation {
		locations = append(locations, where)
	}

	sort.Strings(locations)

	return locations
}

// AverageTimeTracer keeps the running mean duration of the tasks that pass a
// filter.
type AverageTimeTracer struct {
	taskTimer

	averageTime sim.VTimeInSec
	taskCount   uint64
}

// NewAverageTimeTracer creates a new AverageTimeTracer.
func NewAverageTimeTracer(
	timeTeller sim.TimeTeller,
	filter TaskFilter,
) *AverageTimeTracer {
	t := &AverageTimeTracer{}

	t.setup(timeTeller, filter, func(_ Task, d sim.VTimeInSec) {
		n := float64(t.taskCount)
		t.averageTime = sim.VTimeInSec(
			(float64(t.averageTime)*n + float64(d)) / (n + 1))
		t.taskCount++
	})

	return t
}

// AverageTime returns the mean duration of the finished tasks.
func (t *AverageTimeTracer) AverageTime() sim.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.averageTime
}

// TotalCount returns the number of finished tasks.
func (t *AverageTimeTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.taskCount
}
