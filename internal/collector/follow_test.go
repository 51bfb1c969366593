package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/storage/memory"
)

func TestFollow_CollectsHeadsUntilClosed(t *testing.T) {
	store := memory.NewObservationStore("follow")
	reader := newFakeReader()

	heads := make(chan uint64, 4)
	heads <- 100
	heads <- 102 // 101 is filled in
	heads <- 101 // stale, ignored
	heads <- 103
	close(heads)

	res := newTestCollector(reader, store).Follow(context.Background(), 100, HeadStream{Numbers: heads}, []domain.Pool{poolA}, NewTable())

	require.NoError(t, res.Err())
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []uint64{100, 101, 102, 103}, reader.batchBlocks)
	assert.Equal(t, 1, store.Saves(), "follow saves once, at termination")

	rows, _ := store.Load(context.Background())
	assert.Len(t, rows, 4)
}

func TestFollow_HeadBeforeStartIgnored(t *testing.T) {
	store := memory.NewObservationStore("follow")
	reader := newFakeReader()

	heads := make(chan uint64, 2)
	heads <- 90
	heads <- 100
	close(heads)

	res := newTestCollector(reader, store).Follow(context.Background(), 100, HeadStream{Numbers: heads}, []domain.Pool{poolA}, NewTable())

	require.NoError(t, res.Err())
	assert.Equal(t, []uint64{100}, reader.batchBlocks)
}

func TestFollow_CancellationCompletes(t *testing.T) {
	store := memory.NewObservationStore("follow")
	reader := newFakeReader()

	ctx, cancel := context.WithCancel(context.Background())
	heads := make(chan uint64)

	done := make(chan Result, 1)
	go func() {
		done <- newTestCollector(reader, store).Follow(ctx, 100, HeadStream{Numbers: heads}, []domain.Pool{poolA}, NewTable())
	}()

	heads <- 100
	heads <- 101
	// Received only once 101 is fully collected; stale, so ignored
	heads <- 101
	cancel()

	var res Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop on cancellation")
	}

	require.NoError(t, res.Err())
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Nil(t, res.Fault)

	rows, _ := store.Load(context.Background())
	assert.Len(t, rows, 2)
}

func TestFollow_CancelledDuringReadCompletes(t *testing.T) {
	store := memory.NewObservationStore("follow")
	reader := newFakeReader()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader.onBatch = func(block uint64) {
		if block == 101 {
			cancel()
		}
	}

	heads := make(chan uint64, 1)
	heads <- 101

	res := newTestCollector(reader, store).Follow(ctx, 100, HeadStream{Numbers: heads}, []domain.Pool{poolA}, NewTable())

	require.NoError(t, res.Err())
	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, res.Table.Exists(100, poolA.Name))
	assert.False(t, res.Table.Exists(101, poolA.Name))
	assert.Equal(t, 1, store.Saves())
}

func TestFollow_FaultAborts(t *testing.T) {
	store := memory.NewObservationStore("follow")
	reader := newFakeReader()
	reader.batchErr[101] = errors.New("node unavailable")

	heads := make(chan uint64, 2)
	heads <- 100
	heads <- 102

	res := newTestCollector(reader, store).Follow(context.Background(), 100, HeadStream{Numbers: heads}, []domain.Pool{poolA}, NewTable())

	assert.Equal(t, StatusAborted, res.Status)
	require.NotNil(t, res.Fault)
	assert.Equal(t, uint64(101), res.Fault.Sample)

	rows, _ := store.Load(context.Background())
	assert.Len(t, rows, 1)
}

func TestFollow_HeadStreamErrorAborts(t *testing.T) {
	store := memory.NewObservationStore("follow")
	reader := newFakeReader()
	dropped := errors.New("websocket: close 1006 (abnormal closure)")

	heads := make(chan uint64, 1)
	heads <- 101
	close(heads)

	stream := HeadStream{Numbers: heads, Err: func() error { return dropped }}
	res := newTestCollector(reader, store).Follow(context.Background(), 100, stream, []domain.Pool{poolA}, NewTable())

	assert.Equal(t, StatusAborted, res.Status)
	require.NotNil(t, res.Fault)
	assert.Equal(t, StageHeads, res.Fault.Stage)
	assert.Equal(t, uint64(102), res.Fault.Sample)
	assert.ErrorIs(t, res.Err(), dropped)
	assert.ErrorIs(t, res.Err(), ErrReadFault)

	rows, _ := store.Load(context.Background())
	assert.Len(t, rows, 2)
}

func TestFollow_HeadStreamCleanCloseCompletes(t *testing.T) {
	store := memory.NewObservationStore("follow")
	heads := make(chan uint64)
	close(heads)

	stream := HeadStream{Numbers: heads, Err: func() error { return nil }}
	res := newTestCollector(newFakeReader(), store).Follow(context.Background(), 100, stream, []domain.Pool{poolA}, NewTable())

	require.NoError(t, res.Err())
	assert.Equal(t, StatusCompleted, res.Status)
}
