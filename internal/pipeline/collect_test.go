package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-lp-lab/internal/blocks"
	"curve-lp-lab/internal/collector"
	"curve-lp-lab/internal/curve"
	"curve-lp-lab/internal/domain"
	"curve-lp-lab/internal/storage/memory"
)

type fakeResolver map[string]uint64

func (f fakeResolver) Resolve(_ context.Context, date string) (uint64, error) {
	block, ok := f[date]
	if !ok {
		return 0, blocks.ErrNoBlockFound
	}
	return block, nil
}

type stubReader struct {
	blocks []uint64
}

func (r *stubReader) SampleMetadata(_ context.Context, block uint64) (int64, error) {
	return 1_600_000_000 + int64(block)*12, nil
}

func (r *stubReader) BatchRead(_ context.Context, block uint64, pools []domain.Pool) (map[string]domain.PoolState, error) {
	r.blocks = append(r.blocks, block)
	out := make(map[string]domain.PoolState, len(pools))
	for _, p := range pools {
		out[p.Name] = domain.PoolState{VirtualPrice: 1 + float64(block)*1e-6, TotalSupply: 1e6}
	}
	return out, nil
}

type failingCatalog struct{ err error }

func (c failingCatalog) ListPools(context.Context) ([]domain.Pool, error) {
	return nil, c.err
}

func testCatalog(t *testing.T) curve.Catalog {
	t.Helper()
	cat, err := curve.NewStaticCatalog([]curve.PoolEntry{
		{Name: "3pool", Address: "0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7", LPToken: "0x6c3F90f043a72FA612cbac8115EE7e52BDe6E490"},
		{Name: "steth", Address: "0xDC24316b9AE028F1497c275EB9192a3Ea0f67022", LPToken: "0x06325440D014e39736583c165C2963BA99fAf14E"},
	})
	require.NoError(t, err)
	return cat
}

var dates = fakeResolver{
	"2021-11-01": 100,
	"2021-11-02": 104,
}

func newTestJob(t *testing.T, reader *stubReader, store *memory.ObservationStore, heads HeadSource) *CollectJob {
	t.Helper()
	return NewCollectJob(CollectOptions{
		Resolver:  dates,
		Catalog:   testCatalog(t),
		Store:     store,
		Collector: collector.New(collector.Options{Reader: reader, Store: store}),
		Heads:     heads,
	})
}

func TestCollectJob_Range(t *testing.T) {
	store := memory.NewObservationStore("pools")
	reader := &stubReader{}

	report, err := newTestJob(t, reader, store, nil).Run(context.Background(), CollectRequest{
		DateStart: "2021-11-01",
		DateEnd:   "2021-11-02",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.SampleRange{Start: 100, End: 104}, report.Range)
	assert.Len(t, report.Pools, 2)
	assert.Equal(t, collector.StatusCompleted, report.Result.Status)
	assert.Equal(t, []uint64{100, 101, 102, 103}, reader.blocks)
	assert.Nil(t, report.Followed)

	rows, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 8)
}

func TestCollectJob_ResumesFromStore(t *testing.T) {
	store := memory.NewObservationStore("pools")
	ctx := context.Background()
	req := CollectRequest{DateStart: "2021-11-01", DateEnd: "2021-11-02"}

	_, err := newTestJob(t, &stubReader{}, store, nil).Run(ctx, req)
	require.NoError(t, err)

	reader := &stubReader{}
	report, err := newTestJob(t, reader, store, nil).Run(ctx, req)
	require.NoError(t, err)

	assert.Empty(t, reader.blocks, "a fully recorded range needs no reads")
	assert.Equal(t, 4, report.Result.Stats.SamplesSkipped)
	assert.Equal(t, 1, store.Saves(), "an unchanged table is not rewritten")
}

func TestCollectJob_ResolveError(t *testing.T) {
	store := memory.NewObservationStore("pools")

	_, err := newTestJob(t, &stubReader{}, store, nil).Run(context.Background(), CollectRequest{
		DateStart: "2021-11-01",
		DateEnd:   "2030-01-01",
	})
	assert.ErrorIs(t, err, blocks.ErrNoBlockFound)
	assert.Zero(t, store.Saves())
}

func TestCollectJob_InvalidRange(t *testing.T) {
	store := memory.NewObservationStore("pools")

	_, err := newTestJob(t, &stubReader{}, store, nil).Run(context.Background(), CollectRequest{
		DateStart: "2021-11-02",
		DateEnd:   "2021-11-01",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestCollectJob_MissingDates(t *testing.T) {
	job := newTestJob(t, &stubReader{}, memory.NewObservationStore("pools"), nil)

	_, err := job.Run(context.Background(), CollectRequest{DateEnd: "2021-11-02"})
	assert.ErrorIs(t, err, blocks.ErrInvalidDate)

	_, err = job.Run(context.Background(), CollectRequest{DateStart: "2021-11-01"})
	assert.ErrorIs(t, err, blocks.ErrInvalidDate)

	_, err = job.Run(context.Background(), CollectRequest{DateStart: "2021-11-01", Follow: true})
	assert.ErrorIs(t, err, ErrFollowUnavailable)
}

func TestCollectJob_CatalogError(t *testing.T) {
	store := memory.NewObservationStore("pools")
	registryDown := errors.New("registry down")

	job := NewCollectJob(CollectOptions{
		Resolver:  dates,
		Catalog:   failingCatalog{err: registryDown},
		Store:     store,
		Collector: collector.New(collector.Options{Reader: &stubReader{}, Store: store}),
	})

	_, err := job.Run(context.Background(), CollectRequest{DateStart: "2021-11-01", DateEnd: "2021-11-02"})
	assert.ErrorIs(t, err, registryDown)
	assert.Zero(t, store.Saves())
}

func TestCollectJob_Follow(t *testing.T) {
	store := memory.NewObservationStore("pools")
	reader := &stubReader{}

	heads := func(context.Context) (collector.HeadStream, error) {
		ch := make(chan uint64, 2)
		ch <- 105
		ch <- 106
		close(ch)
		return collector.HeadStream{Numbers: ch}, nil
	}

	report, err := newTestJob(t, reader, store, heads).Run(context.Background(), CollectRequest{
		DateStart: "2021-11-01",
		DateEnd:   "2021-11-02",
		Follow:    true,
	})
	require.NoError(t, err)
	require.NotNil(t, report.Followed)

	assert.Equal(t, []uint64{100, 101, 102, 103, 104, 105, 106}, reader.blocks)
	assert.Equal(t, 6, report.Followed.Stats.ObservationsAdded)

	rows, _ := store.Load(context.Background())
	assert.Len(t, rows, 14)
}

func TestCollectJob_FollowWithoutEnd(t *testing.T) {
	store := memory.NewObservationStore("pools")
	reader := &stubReader{}

	heads := func(context.Context) (collector.HeadStream, error) {
		ch := make(chan uint64, 1)
		ch <- 101
		close(ch)
		return collector.HeadStream{Numbers: ch}, nil
	}

	report, err := newTestJob(t, reader, store, heads).Run(context.Background(), CollectRequest{
		DateStart: "2021-11-01",
		Follow:    true,
	})
	require.NoError(t, err)

	assert.True(t, report.Range.Empty())
	assert.Equal(t, []uint64{100, 101}, reader.blocks)
}

func TestCollectJob_FollowSubscribeError(t *testing.T) {
	store := memory.NewObservationStore("pools")
	wsDown := errors.New("ws down")

	heads := func(context.Context) (collector.HeadStream, error) { return collector.HeadStream{}, wsDown }

	report, err := newTestJob(t, &stubReader{}, store, heads).Run(context.Background(), CollectRequest{
		DateStart: "2021-11-01",
		DateEnd:   "2021-11-02",
		Follow:    true,
	})
	assert.ErrorIs(t, err, wsDown)
	require.NotNil(t, report)
	assert.Equal(t, collector.StatusCompleted, report.Result.Status, "the historical range is kept")
	assert.Equal(t, 1, store.Saves())
}

func TestCollectJob_FollowDroppedStreamFails(t *testing.T) {
	store := memory.NewObservationStore("pools")
	dropped := errors.New("unexpected EOF")

	heads := func(context.Context) (collector.HeadStream, error) {
		ch := make(chan uint64, 1)
		ch <- 106
		close(ch)
		return collector.HeadStream{Numbers: ch, Err: func() error { return dropped }}, nil
	}

	report, err := newTestJob(t, &stubReader{}, store, heads).Run(context.Background(), CollectRequest{
		DateStart: "2021-11-01",
		DateEnd:   "2021-11-02",
		Follow:    true,
	})
	assert.ErrorIs(t, err, dropped)
	require.NotNil(t, report.Followed)
	assert.Equal(t, collector.StatusAborted, report.Followed.Status)
	assert.Equal(t, collector.StageHeads, report.Followed.Fault.Stage)
	assert.Equal(t, uint64(107), report.Followed.Fault.Sample)
	assert.Equal(t, 2, store.Saves(), "rows read before the drop are kept")
}
