package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tractworks/hazidx/internal/domain"
	"github.com/tractworks/hazidx/internal/formula"
	"github.com/tractworks/hazidx/internal/frame"
	"github.com/tractworks/hazidx/internal/observability"
	"github.com/tractworks/hazidx/internal/score"
)

var testParams = Params{Year: 2020, Geography: domain.Geography{Level: "place", State: "66"}}

// fakeSource serves canned frames per dataset, or errors.
type fakeSource struct {
	frames map[string]*frame.Frame
	errs   map[string]error
	calls  []string
}

func (s *fakeSource) Acquire(_ context.Context, dataset string, _ int, _ domain.Geography, _ []string) (*frame.Frame, error) {
	s.calls = append(s.calls, dataset)
	if err, ok := s.errs[dataset]; ok {
		return nil, err
	}
	f, ok := s.frames[dataset]
	if !ok {
		return nil, &domain.TransportError{Dataset: dataset, Err: errors.New("no canned frame")}
	}
	return f.Copy(), nil
}

// memStore is the in-memory SnapshotStore fake.
type memStore struct {
	snapshots map[string]*frame.Frame
	puts      int
}

func newMemStore() *memStore {
	return &memStore{snapshots: make(map[string]*frame.Frame)}
}

func (m *memStore) Get(key domain.SnapshotKey) (*frame.Frame, bool, error) {
	f, ok := m.snapshots[key.String()]
	if !ok {
		return nil, false, nil
	}
	return f.Copy(), true, nil
}

func (m *memStore) Put(key domain.SnapshotKey, f *frame.Frame) error {
	m.puts++
	m.snapshots[key.String()] = f.Copy()
	return nil
}

func newRunner(src Source, store SnapshotStore) *Runner {
	return New(src, store,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting(),
		clockwork.NewFakeClock(),
		score.Options{})
}

// acsFrame returns a live-shaped dataset table: string geo columns, numeric
// variable columns.
func acsFrame(t *testing.T) *frame.Frame {
	t.Helper()
	f := frame.New(3)
	require.NoError(t, f.SetStrings("state", []string{"66", "66", "66"}))
	require.NoError(t, f.SetStrings("place", []string{"100", "200", "300"}))
	require.NoError(t, f.SetStrings("NAME", []string{"Agana", "Dededo", "Yigo"}))
	require.NoError(t, f.SetFloats("B17001_002E", []float64{10, 20, math.NaN()}))
	return f
}

func decFrame(t *testing.T) *frame.Frame {
	t.Helper()
	f := frame.New(3)
	require.NoError(t, f.SetStrings("state", []string{"66", "66", "66"}))
	require.NoError(t, f.SetStrings("place", []string{"100", "200", "300"}))
	require.NoError(t, f.SetStrings("NAME", []string{"Agana", "Dededo", "Yigo"}))
	require.NoError(t, f.SetFloats("DP1_0001C", []float64{1000, 2000, 3000}))
	return f
}

var testSpecs = []formula.Spec{
	{Alias: "EP_POV", Dataset: "acs/acs5", Expression: "B17001_002E"},
	{Alias: "HU_TOT", Dataset: "dec/dpgu", Expression: "DP1_0001C"},
}

func TestRun_EndToEnd(t *testing.T) {
	src := &fakeSource{frames: map[string]*frame.Frame{
		"acs/acs5": acsFrame(t),
		"dec/dpgu": decFrame(t),
	}}
	store := newMemStore()

	out, err := newRunner(src, store).Run(context.Background(), testSpecs, testParams)
	require.NoError(t, err)

	// Datasets acquired in config order, snapshots persisted for both.
	assert.Equal(t, []string{"acs/acs5", "dec/dpgu"}, src.calls)
	assert.Equal(t, 2, store.puts)

	// Geography keys first, then NAME.
	assert.Equal(t, []string{"state", "place", "NAME"}, out.Columns()[:3])

	pov, ok := out.Floats("EP_POV")
	require.True(t, ok)
	assert.Equal(t, 10.0, pov[0])

	rank, ok := out.Floats("RPL_EP_POV")
	require.True(t, ok)
	assert.Equal(t, 0.0, rank[0])
	assert.Equal(t, 1.0, rank[1])
	assert.True(t, math.IsNaN(rank[2]))

	assert.True(t, out.Has("SPL_HU_TOT"))
	assert.True(t, out.Has("RPL_THEMES"))
}

func TestRun_FallsBackToSnapshot(t *testing.T) {
	store := newMemStore()

	// Seed the cache from a successful run.
	okSrc := &fakeSource{frames: map[string]*frame.Frame{
		"acs/acs5": acsFrame(t),
		"dec/dpgu": decFrame(t),
	}}
	_, err := newRunner(okSrc, store).Run(context.Background(), testSpecs, testParams)
	require.NoError(t, err)

	// Now the source is down for one dataset.
	downSrc := &fakeSource{
		frames: map[string]*frame.Frame{"dec/dpgu": decFrame(t)},
		errs:   map[string]error{"acs/acs5": &domain.TransportError{Dataset: "acs/acs5", Err: errors.New("timeout")}},
	}
	out, err := newRunner(downSrc, store).Run(context.Background(), testSpecs, testParams)
	require.NoError(t, err)

	pov, ok := out.Floats("EP_POV")
	require.True(t, ok)
	assert.Equal(t, 20.0, pov[1])
}

func TestRun_NoCacheNoSourceIsFatal(t *testing.T) {
	src := &fakeSource{
		frames: map[string]*frame.Frame{"acs/acs5": acsFrame(t)},
		errs:   map[string]error{"dec/dpgu": &domain.TransportError{Dataset: "dec/dpgu", Err: errors.New("down")}},
	}

	_, err := newRunner(src, newMemStore()).Run(context.Background(), testSpecs, testParams)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dec/dpgu")
	var te *domain.TransportError
	assert.ErrorAs(t, err, &te)
}

func TestRun_IncompleteLiveResponseFallsBack(t *testing.T) {
	store := newMemStore()
	seed := &fakeSource{frames: map[string]*frame.Frame{
		"acs/acs5": acsFrame(t),
		"dec/dpgu": decFrame(t),
	}}
	_, err := newRunner(seed, store).Run(context.Background(), testSpecs, testParams)
	require.NoError(t, err)
	putsAfterSeed := store.puts

	// Live response now omits the requested column entirely.
	partial := acsFrame(t)
	incomplete := frame.New(partial.NumRows())
	for _, name := range []string{"state", "place", "NAME"} {
		col, _ := partial.Strings(name)
		require.NoError(t, incomplete.SetStrings(name, col))
	}
	src := &fakeSource{frames: map[string]*frame.Frame{
		"acs/acs5": incomplete,
		"dec/dpgu": decFrame(t),
	}}

	out, err := newRunner(src, store).Run(context.Background(), testSpecs, testParams)
	require.NoError(t, err)

	// The incomplete live table must not have overwritten the snapshot.
	assert.Equal(t, putsAfterSeed+1, store.puts, "only the complete dataset is re-persisted")

	pov, ok := out.Floats("EP_POV")
	require.True(t, ok)
	assert.Equal(t, 10.0, pov[0])
}

func TestRun_IncompleteCacheIsFatalNamingField(t *testing.T) {
	store := newMemStore()
	bad := frame.New(1)
	require.NoError(t, bad.SetStrings("state", []string{"66"}))
	require.NoError(t, bad.SetStrings("place", []string{"100"}))
	key := domain.SnapshotKey{Year: 2020, State: "66", Geography: "place", Dataset: "acs/acs5"}
	require.NoError(t, store.Put(key, bad))
	store.puts = 0

	src := &fakeSource{errs: map[string]error{
		"acs/acs5": &domain.TransportError{Dataset: "acs/acs5", Err: errors.New("down")},
	}}

	_, err := newRunner(src, store).Run(context.Background(),
		[]formula.Spec{{Alias: "EP_POV", Dataset: "acs/acs5", Expression: "B17001_002E"}}, testParams)
	require.Error(t, err)

	var ide *domain.IncompleteDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, "acs/acs5", ide.Dataset)
	assert.Equal(t, []string{"B17001_002E"}, ide.Missing)
}

func TestRun_DuplicateKeysInLaterDatasetIsJoinError(t *testing.T) {
	dup := frame.New(2)
	require.NoError(t, dup.SetStrings("state", []string{"66", "66"}))
	require.NoError(t, dup.SetStrings("place", []string{"100", "100"}))
	require.NoError(t, dup.SetStrings("NAME", []string{"Agana", "Agana"}))
	require.NoError(t, dup.SetFloats("DP1_0001C", []float64{1, 2}))

	src := &fakeSource{frames: map[string]*frame.Frame{
		"acs/acs5": acsFrame(t),
		"dec/dpgu": dup,
	}}

	_, err := newRunner(src, newMemStore()).Run(context.Background(), testSpecs, testParams)
	var je *domain.JoinError
	require.ErrorAs(t, err, &je)
	assert.Equal(t, "dec/dpgu", je.Dataset)
}

func TestRun_CycleAborts(t *testing.T) {
	src := &fakeSource{frames: map[string]*frame.Frame{"acs/acs5": acsFrame(t)}}
	specs := []formula.Spec{
		{Alias: "EP_POV", Dataset: "acs/acs5", Expression: "B17001_002E"},
		{Alias: "X", Dataset: "acs/acs5", Expression: "Y + 1"},
		{Alias: "Y", Dataset: "acs/acs5", Expression: "X * 2"},
	}

	_, err := newRunner(src, newMemStore()).Run(context.Background(), specs, testParams)
	var ce *domain.CyclicDefinitionError
	require.ErrorAs(t, err, &ce)
}

func TestRun_AliasOnlyDatasetSkipsAcquisition(t *testing.T) {
	src := &fakeSource{frames: map[string]*frame.Frame{"acs/acs5": acsFrame(t)}}
	specs := []formula.Spec{
		{Alias: "EP_POV", Dataset: "acs/acs5", Expression: "B17001_002E"},
		{Alias: "SVI", Dataset: "derived", Expression: "EP_POV * 2"},
	}

	out, err := newRunner(src, newMemStore()).Run(context.Background(), specs, testParams)
	require.NoError(t, err)

	// Nothing was acquired for the alias-only dataset, yet its alias exists.
	assert.Equal(t, []string{"acs/acs5"}, src.calls)
	svi, ok := out.Floats("SVI")
	require.True(t, ok)
	assert.Equal(t, 20.0, svi[0])
	assert.True(t, math.IsNaN(svi[2]))
}

func TestRun_DuplicateKeysInFirstDatasetIsJoinError(t *testing.T) {
	dup := frame.New(3)
	require.NoError(t, dup.SetStrings("state", []string{"66", "66", "66"}))
	require.NoError(t, dup.SetStrings("place", []string{"100", "100", "300"}))
	require.NoError(t, dup.SetStrings("NAME", []string{"Agana", "Agana", "Yigo"}))
	require.NoError(t, dup.SetFloats("B17001_002E", []float64{1, 2, 3}))

	src := &fakeSource{frames: map[string]*frame.Frame{"acs/acs5": dup}}

	_, err := newRunner(src, newMemStore()).Run(context.Background(),
		[]formula.Spec{{Alias: "EP_POV", Dataset: "acs/acs5", Expression: "B17001_002E"}}, testParams)
	var je *domain.JoinError
	require.ErrorAs(t, err, &je)
	assert.Equal(t, "acs/acs5", je.Dataset)
	assert.Equal(t, "66/100", je.Key)
}

func TestRun_CachedSnapshotMissingKeyColumnIsFatal(t *testing.T) {
	store := newMemStore()
	bad := frame.New(1)
	require.NoError(t, bad.SetStrings("place", []string{"100"}))
	require.NoError(t, bad.SetStrings("NAME", []string{"Agana"}))
	require.NoError(t, bad.SetFloats("B17001_002E", []float64{7}))
	key := domain.SnapshotKey{Year: 2020, State: "66", Geography: "place", Dataset: "acs/acs5"}
	require.NoError(t, store.Put(key, bad))

	src := &fakeSource{errs: map[string]error{
		"acs/acs5": &domain.TransportError{Dataset: "acs/acs5", Err: errors.New("down")},
	}}

	_, err := newRunner(src, store).Run(context.Background(),
		[]formula.Spec{{Alias: "EP_POV", Dataset: "acs/acs5", Expression: "B17001_002E"}}, testParams)
	require.Error(t, err)

	var ide *domain.IncompleteDataError
	require.ErrorAs(t, err, &ide)
	assert.Contains(t, ide.Missing, "state")
}

func TestCheckReadiness(t *testing.T) {
	src := &fakeSource{frames: map[string]*frame.Frame{"acs/acs5": acsFrame(t)}}
	r := newRunner(src, newMemStore())

	require.Error(t, r.CheckReadiness(context.Background()))

	_, err := r.Run(context.Background(),
		[]formula.Spec{{Alias: "EP_POV", Dataset: "acs/acs5", Expression: "B17001_002E"}}, testParams)
	require.NoError(t, err)
	assert.NoError(t, r.CheckReadiness(context.Background()))
}
