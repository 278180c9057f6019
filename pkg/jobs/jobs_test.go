package jobs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/rcarmo/go-ash/pkg/jobs"
)

func TestAddRoundTrip(t *testing.T) {
	tbl := jobs.New(0)
	for i, pgid := range []int{100, 200, 300} {
		id, err := tbl.Add(pgid)
		require.NoError(t, err)
		assert.Equal(t, i+1, id)

		got, ok := tbl.JobID(pgid)
		assert.True(t, ok)
		assert.Equal(t, id, got)
		pg, ok := tbl.ProcessGroup(id)
		assert.True(t, ok)
		assert.Equal(t, pgid, pg)
	}
	assert.Equal(t, 3, tbl.Len())
}

func TestIDsReused(t *testing.T) {
	tbl := jobs.New(0)
	for _, pgid := range []int{10, 20, 30} {
		_, err := tbl.Add(pgid)
		require.NoError(t, err)
	}
	require.NoError(t, tbl.Remove(20))
	_, ok := tbl.ProcessGroup(2)
	assert.False(t, ok)

	id, err := tbl.Add(40)
	require.NoError(t, err)
	assert.Equal(t, 2, id, "lowest free id is reused")

	id, err = tbl.Add(50)
	require.NoError(t, err)
	assert.Equal(t, 4, id)
}

func TestAddErrors(t *testing.T) {
	tbl := jobs.New(2)
	_, err := tbl.Add(0)
	assert.True(t, errors.Is(err, jobs.ErrInvalidGroup))
	_, err = tbl.Add(-5)
	assert.True(t, errors.Is(err, jobs.ErrInvalidGroup))

	_, err = tbl.Add(1)
	require.NoError(t, err)
	_, err = tbl.Add(1)
	assert.True(t, errors.Is(err, jobs.ErrGroupExists))

	_, err = tbl.Add(2)
	require.NoError(t, err)
	_, err = tbl.Add(3)
	assert.True(t, errors.Is(err, jobs.ErrTableFull))
	assert.Equal(t, 2, tbl.Len())
}

func TestRemoveUnknown(t *testing.T) {
	tbl := jobs.New(0)
	assert.True(t, errors.Is(tbl.Remove(99), jobs.ErrUnknownGroup))
}

func TestStatusAndState(t *testing.T) {
	tbl := jobs.New(0)
	id, err := tbl.Add(77)
	require.NoError(t, err)

	stopped := unix.WaitStatus(0x7f | int(unix.SIGTSTP)<<8)
	require.NoError(t, tbl.SetStatus(id, stopped))
	job, ok := tbl.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, jobs.Stopped, job.State)

	ws, err := tbl.Status(id)
	require.NoError(t, err)
	assert.True(t, ws.Stopped())

	require.NoError(t, tbl.SetStatus(id, unix.WaitStatus(0xffff)))
	job, _ = tbl.Lookup(id)
	assert.Equal(t, jobs.Running, job.State, "continued moves back to running")

	require.NoError(t, tbl.SetState(id, jobs.Completed))
	job, _ = tbl.Lookup(id)
	assert.Equal(t, "Done", job.State.String())

	assert.True(t, errors.Is(tbl.SetStatus(9, 0), jobs.ErrUnknownJob))
	_, err = tbl.Status(9)
	assert.True(t, errors.Is(err, jobs.ErrUnknownJob))
	assert.True(t, errors.Is(tbl.SetState(9, jobs.Running), jobs.ErrUnknownJob))
}

func TestSnapshotOrderAndLatest(t *testing.T) {
	tbl := jobs.New(0)
	_, ok := tbl.Latest()
	assert.False(t, ok)
	for _, pgid := range []int{5, 6, 7} {
		_, err := tbl.Add(pgid)
		require.NoError(t, err)
	}
	require.NoError(t, tbl.Remove(5))

	snap := tbl.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 2, snap[0].ID)
	assert.Equal(t, 3, snap[1].ID)

	// Mutating the table does not disturb a snapshot being walked.
	for _, job := range snap {
		require.NoError(t, tbl.Remove(job.PGID))
	}
	assert.Equal(t, 0, tbl.Len())

	_, err := tbl.Add(8)
	require.NoError(t, err)
	latest, ok := tbl.Latest()
	assert.True(t, ok)
	assert.Equal(t, 8, latest.PGID)
}
