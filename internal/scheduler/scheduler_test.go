package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wjs018/rikka/internal/store"
	"github.com/wjs018/rikka/pkg/dispatch"
	"github.com/wjs018/rikka/pkg/feeds"
)

type fakeDispatcher struct {
	st         store.Store
	dispatched []store.UpcomingEpisode
	refreshed  []int
	failFor    map[int]error
	outcomeFor map[int]dispatch.Outcome
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, ep store.UpcomingEpisode, manual bool) (dispatch.Outcome, error) {
	if err := f.failFor[ep.ShowID]; err != nil {
		return dispatch.OutcomeSkipped, err
	}
	f.dispatched = append(f.dispatched, ep)

	outcome := dispatch.OutcomePosted
	if o, ok := f.outcomeFor[ep.ShowID]; ok {
		outcome = o
	}
	if outcome == dispatch.OutcomeSkipped {
		return outcome, nil
	}

	// Mimic the real dispatcher committing the episode.
	if outcome == dispatch.OutcomePosted {
		if err := f.st.AddEpisode(ctx, &store.Episode{ShowID: ep.ShowID, Number: ep.Number, Link: "x", CanEdit: true}); err != nil {
			return dispatch.OutcomeSkipped, err
		}
	}
	if err := f.st.RemoveUpcomingEpisode(ctx, ep.ShowID, ep.Number); err != nil {
		return dispatch.OutcomeSkipped, err
	}
	return outcome, nil
}

func (f *fakeDispatcher) RefreshLinks(ctx context.Context, showID int) error {
	f.refreshed = append(f.refreshed, showID)
	return nil
}

type fakeDiscoverer struct {
	count int
	err   error
}

func (f *fakeDiscoverer) DiscoverUpcoming(context.Context) (int, error) { return f.count, f.err }

type fakeFeeds struct {
	matches []feeds.Match
	err     error
}

func (f *fakeFeeds) Check(context.Context) ([]feeds.Match, error) { return f.matches, f.err }

var baseTime = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func testStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "rikka.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newScheduler(st store.Store, d Dispatcher) *Scheduler {
	s := New(st, &fakeDiscoverer{}, nil, d, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.SetNow(func() time.Time { return baseTime })
	return s
}

func TestRunDispatchesAiredEpisodes(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertShow(ctx, &store.Show{ID: 1, Name: "A", Enabled: true}))
	require.NoError(t, st.AddUpcomingEpisode(ctx, &store.UpcomingEpisode{ShowID: 1, Number: 1, AiringTime: baseTime.Add(-time.Hour).Unix()}))
	require.NoError(t, st.AddUpcomingEpisode(ctx, &store.UpcomingEpisode{ShowID: 1, Number: 2, AiringTime: baseTime.Add(time.Hour).Unix()}))

	d := &fakeDispatcher{st: st}
	res, err := newScheduler(st, d).Run(ctx)
	require.NoError(t, err)

	// Only the already-aired episode dispatches.
	require.Len(t, d.dispatched, 1)
	assert.Equal(t, 1, d.dispatched[0].Number)
	assert.Equal(t, 1, res.Posted)
	assert.Equal(t, []int{1}, d.refreshed)
}

func TestRunIgnoresEpisodesOfDisabledShows(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertShow(ctx, &store.Show{ID: 1, Name: "A", Enabled: false}))
	require.NoError(t, st.AddUpcomingEpisode(ctx, &store.UpcomingEpisode{ShowID: 1, Number: 1, AiringTime: baseTime.Add(-time.Hour).Unix()}))

	d := &fakeDispatcher{st: st}
	res, err := newScheduler(st, d).Run(ctx)
	require.NoError(t, err)

	assert.Empty(t, d.dispatched)
	assert.Equal(t, 1, res.Ignored)

	ignored, err := st.GetIgnoredEpisode(ctx, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, ignored)

	pending, err := st.GetAiredEpisodes(ctx, baseTime.Unix())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunContinuesPastFailures(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertShow(ctx, &store.Show{ID: 1, Name: "A", Enabled: true}))
	require.NoError(t, st.UpsertShow(ctx, &store.Show{ID: 2, Name: "B", Enabled: true}))
	require.NoError(t, st.AddUpcomingEpisode(ctx, &store.UpcomingEpisode{ShowID: 1, Number: 1, AiringTime: baseTime.Add(-2 * time.Hour).Unix()}))
	require.NoError(t, st.AddUpcomingEpisode(ctx, &store.UpcomingEpisode{ShowID: 2, Number: 1, AiringTime: baseTime.Add(-time.Hour).Unix()}))

	d := &fakeDispatcher{st: st, failFor: map[int]error{1: errors.New("instance down")}}
	res, err := newScheduler(st, d).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Posted)
	require.Len(t, d.dispatched, 1)
	assert.Equal(t, 2, d.dispatched[0].ShowID)

	// The failed episode stays queued for the next run.
	pending, err := st.GetAiredEpisodes(ctx, baseTime.Unix())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].ShowID)
}

func TestRunCountsNonPostedOutcomesSeparately(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertShow(ctx, &store.Show{ID: 1, Name: "A", Enabled: true}))
	require.NoError(t, st.UpsertShow(ctx, &store.Show{ID: 2, Name: "B", Enabled: true}))
	require.NoError(t, st.UpsertShow(ctx, &store.Show{ID: 3, Name: "C", Enabled: true}))
	require.NoError(t, st.AddUpcomingEpisode(ctx, &store.UpcomingEpisode{ShowID: 1, Number: 1, AiringTime: baseTime.Add(-3 * time.Hour).Unix()}))
	require.NoError(t, st.AddUpcomingEpisode(ctx, &store.UpcomingEpisode{ShowID: 2, Number: 1, AiringTime: baseTime.Add(-2 * time.Hour).Unix()}))
	require.NoError(t, st.AddUpcomingEpisode(ctx, &store.UpcomingEpisode{ShowID: 3, Number: 1, AiringTime: baseTime.Add(-time.Hour).Unix()}))

	d := &fakeDispatcher{st: st, outcomeFor: map[int]dispatch.Outcome{
		2: dispatch.OutcomeIgnored,
		3: dispatch.OutcomeSkipped,
	}}
	res, err := newScheduler(st, d).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Posted)
	assert.Equal(t, 1, res.Ignored)
	assert.Equal(t, 1, res.Skipped)
	// Links only refresh after an actual post.
	assert.Equal(t, []int{1}, d.refreshed)
}

func TestRunTwiceDispatchesNothingNew(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertShow(ctx, &store.Show{ID: 1, Name: "A", Enabled: true}))
	require.NoError(t, st.AddUpcomingEpisode(ctx, &store.UpcomingEpisode{ShowID: 1, Number: 1, AiringTime: baseTime.Add(-time.Hour).Unix()}))

	d := &fakeDispatcher{st: st}
	s := newScheduler(st, d)

	res, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Posted)
	require.Len(t, d.dispatched, 1)

	// Unchanged state: a second run finds nothing to do.
	res, err = s.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Posted)
	assert.Len(t, d.dispatched, 1)

	eps, err := st.ListEpisodes(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, eps, 1)
}

func TestRunPrunesIgnoredEpisodes(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertShow(ctx, &store.Show{ID: 1, Name: "A", Enabled: true}))
	require.NoError(t, st.AddIgnoredEpisode(ctx, &store.UpcomingEpisode{ShowID: 1, Number: 1, AiringTime: baseTime.Add(-40 * 24 * time.Hour).Unix()}))
	require.NoError(t, st.AddIgnoredEpisode(ctx, &store.UpcomingEpisode{ShowID: 1, Number: 2, AiringTime: baseTime.Add(-time.Hour).Unix()}))

	s := New(st, &fakeDiscoverer{}, nil, &fakeDispatcher{st: st}, 30*24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.SetNow(func() time.Time { return baseTime })

	res, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Pruned)
}

func TestRunSurvivesDiscoveryAndFeedErrors(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertShow(ctx, &store.Show{ID: 1, Name: "A", Enabled: true}))
	require.NoError(t, st.AddUpcomingEpisode(ctx, &store.UpcomingEpisode{ShowID: 1, Number: 1, AiringTime: baseTime.Add(-time.Hour).Unix()}))

	d := &fakeDispatcher{st: st}
	s := New(st, &fakeDiscoverer{err: errors.New("catalog down")},
		&fakeFeeds{err: errors.New("feed down")}, d, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.SetNow(func() time.Time { return baseTime })

	res, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Posted)
}
