package merge

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexcal/nexcal/internal/identity"
	"github.com/nexcal/nexcal/internal/ledger"
	"github.com/nexcal/nexcal/internal/logging"
	"github.com/nexcal/nexcal/internal/models"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func eventKey(id string) models.Key {
	return models.Key{Kind: models.KindEvent, Author: "alice", ID: id}
}

func resource(id string, seq uint64) *models.Resource {
	return &models.Resource{
		Key:     eventKey(id),
		Version: models.VersionInfo{Sequence: seq, LastModified: seq * 10},
	}
}

func newEngine(t *testing.T) (*Engine, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(clock.NewMock(), testLogger())
	return New(l, identity.Static{ID: "alice"}, testLogger()), l
}

func TestMerge_BothAbsent(t *testing.T) {
	e, _ := newEngine(t)

	out := e.Merge(context.Background(), Input{Key: eventKey("e1")})

	assert.Nil(t, out.Resource)
	assert.Equal(t, SourceNexus, out.Source)
	assert.True(t, out.NeedsRefresh)
}

func TestMerge_RemoteOnly(t *testing.T) {
	e, _ := newEngine(t)
	remote := resource("e1", 2)

	out := e.Merge(context.Background(), Input{Key: eventKey("e1"), Remote: remote})

	assert.Equal(t, remote, out.Resource)
	assert.Equal(t, SourceNexus, out.Source)
	assert.False(t, out.NeedsRefresh)
}

func TestMerge_LocalOnly(t *testing.T) {
	e, _ := newEngine(t)
	local := resource("e1", 1)

	out := e.Merge(context.Background(), Input{Key: eventKey("e1"), Local: local, LocalSequence: 1})

	require.NotNil(t, out.Resource)
	assert.Equal(t, uint64(1), out.Resource.Version.Sequence)
	assert.Equal(t, SourceLocal, out.Source)
	assert.True(t, out.NeedsRefresh)
}

func TestMerge_LocalEvicted_RebuiltFromPendingSnapshot(t *testing.T) {
	e, l := newEngine(t)
	snap := resource("e1", 2)
	w := l.RecordFull(snap)

	out := e.Merge(context.Background(), Input{Key: eventKey("e1"), Pending: []*ledger.PendingWrite{w}})

	require.NotNil(t, out.Resource)
	assert.Equal(t, uint64(2), out.Resource.Version.Sequence)
	assert.Equal(t, SourceLocal, out.Source)
	assert.True(t, out.NeedsRefresh)
}

func TestMerge_RemoteCaughtUp_ClearsPending(t *testing.T) {
	e, l := newEngine(t)
	local := resource("e1", 1)
	w := l.RecordFull(local)
	remote := resource("e1", 1)
	remote.Version.IndexedAt = 777

	out := e.Merge(context.Background(), Input{
		Key:           eventKey("e1"),
		Local:         local,
		LocalSequence: 1,
		Remote:        remote,
		Pending:       []*ledger.PendingWrite{w},
	})

	assert.Equal(t, remote, out.Resource)
	assert.Equal(t, SourceNexus, out.Source)
	assert.False(t, out.NeedsRefresh)
	assert.True(t, out.Converged)
	assert.Equal(t, 0, l.Count())
}

func TestMerge_RemoteBehind_MergedKeepsLocalDetailsAndRemoteSocial(t *testing.T) {
	e, l := newEngine(t)

	local := resource("e1", 2)
	var err error
	local.Details, err = models.WrapDetails(models.EventDetails{Summary: "edited"})
	require.NoError(t, err)
	w := l.RecordFull(local)

	remote := resource("e1", 1)
	remote.Details, err = models.WrapDetails(models.EventDetails{Summary: "stale"})
	require.NoError(t, err)
	remote.Social.Tags = []models.Tag{{Label: "jazz", Taggers: []string{"bob", "carol"}}}

	out := e.Merge(context.Background(), Input{
		Key:           eventKey("e1"),
		Local:         local,
		LocalSequence: 2,
		Remote:        remote,
		Pending:       []*ledger.PendingWrite{w},
	})

	require.NotNil(t, out.Resource)
	assert.Equal(t, SourceMerged, out.Source)
	assert.True(t, out.NeedsRefresh)
	assert.False(t, out.Converged)

	var details models.EventDetails
	require.NoError(t, out.Resource.UnwrapDetails(&details))
	assert.Equal(t, "edited", details.Summary, "own edit stays visible")
	assert.Equal(t, uint64(2), out.Resource.Version.Sequence)
	assert.Equal(t, remote.Social.Tags, out.Resource.Social.Tags, "social data is indexer-authoritative")
	assert.Equal(t, 1, l.Count(), "pending survives until convergence")
}

func TestMerge_PendingDeltaAppliedOverRemote(t *testing.T) {
	e, l := newEngine(t)

	remote := resource("e1", 0)
	remote.Social.Tags = []models.Tag{{Label: "Jazz", Taggers: []string{"bob"}}}
	w := l.RecordDelta(eventKey("e1"), models.Delta{Action: models.DeltaAddTag, Label: "jazz"}, 1)

	out := e.Merge(context.Background(), Input{
		Key:     eventKey("e1"),
		Remote:  remote,
		Pending: []*ledger.PendingWrite{w},
	})

	require.NotNil(t, out.Resource)
	assert.Equal(t, SourceMerged, out.Source)
	assert.True(t, out.NeedsRefresh)
	require.Len(t, out.Resource.Social.Tags, 1)
	assert.Equal(t, "Jazz", out.Resource.Social.Tags[0].Label, "first-insertion casing preserved")
	assert.ElementsMatch(t, []string{"bob", "alice"}, out.Resource.Social.Tags[0].Taggers)
}

// Convergence scenario from a local create at sequence 1: a stale fetch keeps
// the local view, the next fetch converges and clears the ledger.
func TestMerge_ConvergenceScenario(t *testing.T) {
	e, l := newEngine(t)
	ctx := context.Background()

	local := resource("e1", 1)
	w := l.RecordFull(local)

	stale := resource("e1", 0)
	out := e.Merge(ctx, Input{
		Key: eventKey("e1"), Local: local, LocalSequence: 1,
		Remote: stale, Pending: []*ledger.PendingWrite{w},
	})
	assert.Equal(t, SourceMerged, out.Source)
	assert.True(t, out.NeedsRefresh)
	assert.Equal(t, 1, l.Count())

	current := resource("e1", 1)
	out = e.Merge(ctx, Input{
		Key: eventKey("e1"), Local: local, LocalSequence: 1,
		Remote: current, Pending: l.AllForResource(eventKey("e1")),
	})
	assert.Equal(t, SourceNexus, out.Source)
	assert.False(t, out.NeedsRefresh)
	assert.True(t, out.Converged)
	assert.Equal(t, 0, l.Count())
}

// Monotonicity: once converged at a sequence, a re-run with a remote at or
// beyond that sequence never falls back to a local source.
func TestMerge_MonotoneAfterConvergence(t *testing.T) {
	e, l := newEngine(t)
	ctx := context.Background()

	local := resource("e1", 1)
	w := l.RecordFull(local)
	remote := resource("e1", 1)

	out := e.Merge(ctx, Input{
		Key: eventKey("e1"), Local: local, LocalSequence: 1,
		Remote: remote, Pending: []*ledger.PendingWrite{w},
	})
	require.True(t, out.Converged)

	later := resource("e1", 3)
	out = e.Merge(ctx, Input{Key: eventKey("e1"), Local: later, Remote: later})
	assert.Equal(t, SourceNexus, out.Source)
	assert.False(t, out.NeedsRefresh)
}
