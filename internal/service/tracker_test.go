package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indranil/pokerledger/internal/storage"
	"github.com/indranil/pokerledger/internal/storage/jsonfile"
)

// fakeSyncer records sync runs so tests can assert notification behavior.
type fakeSyncer struct {
	mu       sync.Mutex
	messages []string
	contents [][]byte
}

func (f *fakeSyncer) Enabled() bool { return true }

func (f *fakeSyncer) Sync(ctx context.Context, message string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	f.contents = append(f.contents, content)
	return nil
}

func (f *fakeSyncer) CheckAuth(ctx context.Context) error { return nil }

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	store, err := jsonfile.New(t.TempDir())
	require.NoError(t, err)
	tracker := New(store, nil)
	t.Cleanup(tracker.Close)
	return tracker
}

func TestCreateEventValidation(t *testing.T) {
	tracker := newTracker(t)
	ctx := context.Background()

	_, err := tracker.CreateEvent(ctx, "   ")
	assert.True(t, storage.IsValidation(err), "empty name must be a validation error, got %v", err)

	event, err := tracker.CreateEvent(ctx, "Friday Game - 2025-01-10")
	require.NoError(t, err)
	assert.Equal(t, "Friday Game - 2025-01-10", event.Name)
	assert.NotZero(t, event.CreatedAt)

	_, err = tracker.CreateEvent(ctx, "Friday Game - 2025-01-10")
	assert.ErrorIs(t, err, storage.ErrExists)
}

func TestSavePlayersComputesDerivedFields(t *testing.T) {
	tracker := newTracker(t)
	ctx := context.Background()
	_, err := tracker.CreateEvent(ctx, "Test")
	require.NoError(t, err)

	saved, err := tracker.SavePlayers(ctx, "Test", []PlayerInput{
		{Name: "Alice", Start: "20", BuyIns: 0, Days: []string{"35", "42", "50"}},
		{Name: "Bust", Days: []string{"0"}},
		{Name: "NoShow", BuyIns: 2},
		{Name: "  "}, // unnamed rows are dropped
	})
	require.NoError(t, err)
	require.Len(t, saved, 3)

	alice := saved[0]
	assert.True(t, alice.PL.Equal(decimal.NewFromInt(67)), "pl = %s", alice.PL)
	assert.Equal(t, 3, alice.DaysPlayed)

	bust := saved[1]
	assert.True(t, bust.PL.Equal(decimal.NewFromInt(-20)), "a recorded zero is a bust, pl = %s", bust.PL)
	assert.Equal(t, 1, bust.DaysPlayed)

	noShow := saved[2]
	assert.True(t, noShow.PL.IsZero(), "buy-ins with zero days played stay at zero, pl = %s", noShow.PL)
	assert.Equal(t, 0, noShow.DaysPlayed)
}

func TestSavePlayersValidation(t *testing.T) {
	tracker := newTracker(t)
	ctx := context.Background()
	_, err := tracker.CreateEvent(ctx, "Test")
	require.NoError(t, err)

	tests := []struct {
		name   string
		inputs []PlayerInput
	}{
		{
			name: "duplicate names case-insensitive",
			inputs: []PlayerInput{
				{Name: "Alice"}, {Name: "ALICE"},
			},
		},
		{
			name:   "negative buy-ins",
			inputs: []PlayerInput{{Name: "Alice", BuyIns: -1}},
		},
		{
			name:   "negative starting stake",
			inputs: []PlayerInput{{Name: "Alice", Start: "-5"}},
		},
		{
			name:   "unparseable starting stake",
			inputs: []PlayerInput{{Name: "Alice", Start: "twenty"}},
		},
		{
			name:   "too many day values",
			inputs: []PlayerInput{{Name: "Alice", Days: []string{"1", "2", "3", "4", "5", "6", "7", "8"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tracker.SavePlayers(ctx, "Test", tt.inputs)
			assert.True(t, storage.IsValidation(err), "want validation error, got %v", err)
		})
	}

	// A failed save must not have been partially applied.
	players, err := tracker.Players(ctx, "Test")
	require.NoError(t, err)
	assert.Empty(t, players)
}

func TestSavePlayersUnknownEvent(t *testing.T) {
	tracker := newTracker(t)
	_, err := tracker.SavePlayers(context.Background(), "missing", []PlayerInput{{Name: "Alice"}})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func setupSettledEvent(t *testing.T, tracker *Tracker) {
	t.Helper()
	ctx := context.Background()
	_, err := tracker.CreateEvent(ctx, "Test")
	require.NoError(t, err)

	// Day values chosen so P/L comes out as A:+15, B:-5, C:-10.
	_, err = tracker.SavePlayers(ctx, "Test", []PlayerInput{
		{Name: "A", Days: []string{"35"}},
		{Name: "B", Days: []string{"15"}},
		{Name: "C", Days: []string{"10"}},
	})
	require.NoError(t, err)
}

func TestSettlements(t *testing.T) {
	tracker := newTracker(t)
	setupSettledEvent(t, tracker)

	result, err := tracker.Settlements(context.Background(), "Test")
	require.NoError(t, err)

	require.Len(t, result.Edges, 2)
	assert.Equal(t, "C", result.Edges[0].From)
	assert.Equal(t, "A", result.Edges[0].To)
	assert.True(t, result.Edges[0].Amount.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "B", result.Edges[1].From)
	assert.Equal(t, "A", result.Edges[1].To)
	assert.True(t, result.Edges[1].Amount.Equal(decimal.NewFromInt(5)))

	assert.True(t, result.TotalWinners.Equal(decimal.NewFromInt(15)))
	assert.True(t, result.TotalLosers.Equal(decimal.NewFromInt(15)))
	assert.True(t, result.Unsettled.IsZero())
}

func TestPaidFlagCarriesForward(t *testing.T) {
	tracker := newTracker(t)
	setupSettledEvent(t, tracker)
	ctx := context.Background()

	_, err := tracker.Settlements(ctx, "Test")
	require.NoError(t, err)
	require.NoError(t, tracker.MarkPaid(ctx, "Test", "C", "A", true))

	// Re-save unrelated player data that leaves every P/L unchanged.
	_, err = tracker.SavePlayers(ctx, "Test", []PlayerInput{
		{Name: "A", Phone: "555-0199", Days: []string{"35"}},
		{Name: "B", Days: []string{"15"}},
		{Name: "C", Days: []string{"10"}},
	})
	require.NoError(t, err)

	result, err := tracker.Settlements(ctx, "Test")
	require.NoError(t, err)
	require.Len(t, result.Edges, 2)
	assert.True(t, result.Edges[0].Paid, "C->A must stay paid after recomputation")
	assert.False(t, result.Edges[1].Paid)

	// A pair that disappears from the recomputation loses its flag; a
	// new pair defaults to unpaid.
	_, err = tracker.SavePlayers(ctx, "Test", []PlayerInput{
		{Name: "A", Days: []string{"25"}},
		{Name: "D", Days: []string{"15"}},
	})
	require.NoError(t, err)
	result, err = tracker.Settlements(ctx, "Test")
	require.NoError(t, err)
	require.Len(t, result.Edges, 1)
	assert.Equal(t, "D", result.Edges[0].From)
	assert.False(t, result.Edges[0].Paid)
}

func TestSettlementsNonZeroSumWarns(t *testing.T) {
	tracker := newTracker(t)
	ctx := context.Background()
	_, err := tracker.CreateEvent(ctx, "Test")
	require.NoError(t, err)

	// A:+25, B:-10 — winners exceed losers by 15.
	_, err = tracker.SavePlayers(ctx, "Test", []PlayerInput{
		{Name: "A", Days: []string{"45"}},
		{Name: "B", Days: []string{"10"}},
	})
	require.NoError(t, err)

	result, err := tracker.Settlements(ctx, "Test")
	require.NoError(t, err)
	require.Len(t, result.Edges, 1)
	assert.True(t, result.Unsettled.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, "creditors", result.UnsettledSide)
}

func TestClear(t *testing.T) {
	tracker := newTracker(t)
	setupSettledEvent(t, tracker)
	ctx := context.Background()

	require.NoError(t, tracker.Clear(ctx, "Test"))

	players, err := tracker.Players(ctx, "Test")
	require.NoError(t, err)
	assert.Empty(t, players)

	events, err := tracker.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1, "clearing keeps the event itself")
}

func TestCheckHealthLocalOnly(t *testing.T) {
	tracker := newTracker(t)
	h := tracker.CheckHealth(context.Background())
	assert.True(t, h.StoreOK)
	assert.False(t, h.SyncEnabled, "local-only mode is fully supported")
	assert.Empty(t, h.SyncError)
}

func TestNotifyRacingCloseDoesNotPanic(t *testing.T) {
	store, err := jsonfile.New(t.TempDir())
	require.NoError(t, err)
	tracker := New(store, &fakeSyncer{})
	ctx := context.Background()

	_, err = tracker.CreateEvent(ctx, "Test")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_ = tracker.MarkPaid(ctx, "Test", "A", "B", true)
			}
		}()
	}

	// Shutting down while mutations are in flight must drop their sync
	// notifications, not panic on the closed queue.
	tracker.Close()
	wg.Wait()
}

func TestSyncNotifications(t *testing.T) {
	store, err := jsonfile.New(t.TempDir())
	require.NoError(t, err)
	syncer := &fakeSyncer{}
	tracker := New(store, syncer)
	ctx := context.Background()

	_, err = tracker.CreateEvent(ctx, "Test")
	require.NoError(t, err)
	_, err = tracker.SavePlayers(ctx, "Test", []PlayerInput{{Name: "Alice", Days: []string{"35"}}})
	require.NoError(t, err)

	// Close drains the queue before returning.
	tracker.Close()

	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	require.NotEmpty(t, syncer.messages)

	// Every pushed snapshot must be a parseable store export.
	var snap struct {
		Events []struct {
			Name string `json:"name"`
		} `json:"events"`
	}
	last := syncer.contents[len(syncer.contents)-1]
	require.NoError(t, json.Unmarshal(last, &snap))
	require.Len(t, snap.Events, 1)
	assert.Equal(t, "Test", snap.Events[0].Name)
}
