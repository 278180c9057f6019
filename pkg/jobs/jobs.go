// Package jobs tracks the process groups the shell has started.
package jobs

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sys/unix"
)

var (
	ErrTableFull    = errors.New("job table full")
	ErrGroupExists  = errors.New("process group already tracked")
	ErrInvalidGroup = errors.New("invalid process group")
	ErrUnknownGroup = errors.New("no such process group")
	ErrUnknownJob   = errors.New("no such job")
)

// DefaultLimit is the table size used when none is configured.
const DefaultLimit = 64

// State is the coarse lifecycle state of a job.
type State int

const (
	Running State = iota
	Stopped
	Completed
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Completed:
		return "Done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Job is one tracked process group.
type Job struct {
	ID   int
	PGID int
	// Status is the most recent wait status recorded for any member.
	Status unix.WaitStatus
	State  State
}

// Table maps process groups to small job ids. Ids are allocated lowest
// free first, so they are reused after removal. It is not safe for
// concurrent use.
type Table struct {
	limit  int
	byPGID map[int]*Job
	byID   map[int]*Job
}

// New returns a table holding at most limit jobs. A non-positive limit
// selects DefaultLimit.
func New(limit int) *Table {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Table{
		limit:  limit,
		byPGID: map[int]*Job{},
		byID:   map[int]*Job{},
	}
}

// Add starts tracking pgid and returns its job id.
func (t *Table) Add(pgid int) (int, error) {
	if pgid <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidGroup, pgid)
	}
	if _, ok := t.byPGID[pgid]; ok {
		return 0, fmt.Errorf("%w: %d", ErrGroupExists, pgid)
	}
	if len(t.byPGID) >= t.limit {
		return 0, ErrTableFull
	}
	id := 1
	for t.byID[id] != nil {
		id++
	}
	job := &Job{ID: id, PGID: pgid, State: Running}
	t.byPGID[pgid] = job
	t.byID[id] = job
	return id, nil
}

// JobID returns the job id for pgid.
func (t *Table) JobID(pgid int) (int, bool) {
	job, ok := t.byPGID[pgid]
	if !ok {
		return 0, false
	}
	return job.ID, true
}

// ProcessGroup returns the process group for a job id.
func (t *Table) ProcessGroup(id int) (int, bool) {
	job, ok := t.byID[id]
	if !ok {
		return 0, false
	}
	return job.PGID, true
}

// Lookup returns a copy of the job with the given id.
func (t *Table) Lookup(id int) (Job, bool) {
	job, ok := t.byID[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// SetStatus records ws for the job and moves it to Stopped or Running
// when ws says the member stopped or continued.
func (t *Table) SetStatus(id int, ws unix.WaitStatus) error {
	job, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownJob, id)
	}
	job.Status = ws
	switch {
	case ws.Stopped():
		job.State = Stopped
	case ws.Continued():
		job.State = Running
	}
	return nil
}

// Status returns the last wait status recorded for the job.
func (t *Table) Status(id int) (unix.WaitStatus, error) {
	job, ok := t.byID[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownJob, id)
	}
	return job.Status, nil
}

// SetState overrides the job's state.
func (t *Table) SetState(id int, state State) error {
	job, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownJob, id)
	}
	job.State = state
	return nil
}

// Remove stops tracking pgid, freeing its job id.
func (t *Table) Remove(pgid int) error {
	job, ok := t.byPGID[pgid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownGroup, pgid)
	}
	delete(t.byPGID, pgid)
	delete(t.byID, job.ID)
	return nil
}

// Snapshot returns copies of all jobs ordered by id. The table may be
// modified while the snapshot is walked.
func (t *Table) Snapshot() []Job {
	out := make([]Job, 0, len(t.byID))
	for _, job := range t.byID {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Latest returns the job with the highest id.
func (t *Table) Latest() (Job, bool) {
	var latest *Job
	for _, job := range t.byID {
		if latest == nil || job.ID > latest.ID {
			latest = job
		}
	}
	if latest == nil {
		return Job{}, false
	}
	return *latest, true
}

// Len returns the number of tracked jobs.
func (t *Table) Len() int {
	return len(t.byPGID)
}
