// Package service implements the core API of the poker ledger: event
// lifecycle, player data saves, settlement computation, and the health
// query. It validates input, recomputes derived fields on every save, and
// notifies the remote sync adapter off the critical path of local writes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/indranil/pokerledger/internal/ledger"
	"github.com/indranil/pokerledger/internal/models"
	"github.com/indranil/pokerledger/internal/remote"
	"github.com/indranil/pokerledger/internal/settle"
	"github.com/indranil/pokerledger/internal/storage"
)

// syncTimeout bounds a single background sync run, including retries.
const syncTimeout = 60 * time.Second

// Tracker is the core service. All operations take the event identifier
// explicitly; there is no ambient session state.
type Tracker struct {
	store  storage.Store
	syncer remote.Syncer

	jobs chan string
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a Tracker over the given store. syncer may be nil or disabled;
// local operation is identical either way. When the syncer is enabled a
// single background worker drains sync notifications so local save latency
// never depends on remote availability.
func New(store storage.Store, syncer remote.Syncer) *Tracker {
	t := &Tracker{
		store:  store,
		syncer: syncer,
		jobs:   make(chan string, 8),
	}
	if syncer != nil && syncer.Enabled() {
		t.wg.Add(1)
		go t.syncWorker()
	}
	return t
}

// Close stops the background sync worker, letting an in-flight push finish.
// The local store is always consistent regardless of where a sync attempt
// was abandoned: local writes commit before sync is even queued.
func (t *Tracker) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.jobs)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// notify queues a sync run for a completed local mutation. The queue is
// small and lossy on purpose: every run pushes the full current snapshot,
// so dropped notifications coalesce into the next one. Mutations racing
// shutdown are dropped the same way rather than panicking on the closed
// channel.
func (t *Tracker) notify(message string) {
	if t.syncer == nil || !t.syncer.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.jobs <- message:
	default:
		slog.Debug("sync queue full, coalescing notification", "message", message)
	}
}

func (t *Tracker) syncWorker() {
	defer t.wg.Done()
	for message := range t.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		snapshot, err := t.store.Export(ctx)
		if err != nil {
			slog.Error("sync skipped: snapshot export failed", "error", err)
			cancel()
			continue
		}
		// Errors are terminal sync outcomes; they are already logged
		// and counted by the syncer and must not propagate.
		_ = t.syncer.Sync(ctx, message, snapshot)
		cancel()
	}
}

// ListEvents returns all events, newest first.
func (t *Tracker) ListEvents(ctx context.Context) ([]models.Event, error) {
	return t.store.ListEvents(ctx)
}

// CreateEvent creates a new named event.
func (t *Tracker) CreateEvent(ctx context.Context, name string) (models.Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Event{}, storage.Validationf("event_name", "event name required")
	}

	event := models.Event{Name: name, CreatedAt: time.Now().Unix()}
	if err := t.store.CreateEvent(ctx, event); err != nil {
		return models.Event{}, err
	}

	slog.Info("event created", "event", name)
	t.notify(fmt.Sprintf("Create event %q", name))
	return event, nil
}

// DeleteEvent removes an event and everything scoped to it.
func (t *Tracker) DeleteEvent(ctx context.Context, name string) error {
	if err := t.store.DeleteEvent(ctx, name); err != nil {
		return err
	}
	slog.Info("event deleted", "event", name)
	t.notify(fmt.Sprintf("Delete event %q", name))
	return nil
}

// Players returns the stored player records for an event.
func (t *Tracker) Players(ctx context.Context, event string) ([]models.Player, error) {
	return t.store.GetPlayers(ctx, event)
}

// PlayerInput is one player row as entered by the caller. Day values are
// raw strings: empty means the day was not played, and "0" means the player
// busted. Start is optional; empty means the default stake.
type PlayerInput struct {
	Name   string   `json:"name"`
	Phone  string   `json:"phone,omitempty"`
	Start  string   `json:"start,omitempty"`
	BuyIns int      `json:"buyins"`
	Days   []string `json:"days"`
}

// SavePlayers validates and persists the full player list for an event,
// recomputing each player's P/L and days-played from the raw day values.
// Rows without a name are dropped, matching how the sheet-based original
// ignored unnamed rows. The whole list is replaced in one save; there are
// no partial patches.
func (t *Tracker) SavePlayers(ctx context.Context, event string, inputs []PlayerInput) ([]models.Player, error) {
	players := make([]models.Player, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))

	for _, in := range inputs {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, storage.Validationf("name", "duplicate player name %q", name)
		}
		seen[key] = true

		p := models.Player{
			Name:   name,
			Phone:  strings.TrimSpace(in.Phone),
			Start:  models.DefaultStake,
			BuyIns: in.BuyIns,
		}
		if in.BuyIns < 0 {
			return nil, storage.Validationf("buyins", "player %q: buy-in count cannot be negative", name)
		}
		if raw := strings.TrimSpace(in.Start); raw != "" {
			start, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, storage.Validationf("start", "player %q: invalid starting stake %q", name, raw)
			}
			if start.IsNegative() {
				return nil, storage.Validationf("start", "player %q: starting stake cannot be negative", name)
			}
			p.Start = start
		}
		if len(in.Days) > models.MaxDays {
			return nil, storage.Validationf("days", "player %q: at most %d day values allowed", name, models.MaxDays)
		}
		for i, raw := range in.Days {
			p.Days[i] = models.ParseDay(raw)
		}

		p.PL, p.DaysPlayed = ledger.Compute(p.Start, p.BuyIns, models.BuyInValue, p.Days[:])
		players = append(players, p)
	}

	if err := t.store.SavePlayers(ctx, event, players); err != nil {
		return nil, err
	}

	slog.Info("players saved", "event", event, "players", len(players))
	t.notify(fmt.Sprintf("Save %d player(s) for %q", len(players), event))
	return players, nil
}

// SettlementResult is the outcome of a settlement computation.
type SettlementResult struct {
	// Edges are the transfers that zero out all balances, largest first.
	Edges []models.SettlementEdge `json:"settlements"`

	// TotalWinners and TotalLosers are the summed magnitudes of positive
	// and negative P/L. For clean data they match.
	TotalWinners decimal.Decimal `json:"total_winners"`
	TotalLosers  decimal.Decimal `json:"total_losers"`

	// Unsettled is the residual balance left over when the two totals
	// disagree (a data entry problem), and which side holds it.
	Unsettled     decimal.Decimal `json:"unsettled"`
	UnsettledSide string          `json:"unsettled_side,omitempty"`
}

// Settlements recomputes the settlement edges for an event from current
// player P/L values. Paid flags from the previously stored edge set are
// carried forward by (debtor, creditor) pair; the recomputed set then
// replaces the stored one.
func (t *Tracker) Settlements(ctx context.Context, event string) (SettlementResult, error) {
	players, err := t.store.GetPlayers(ctx, event)
	if err != nil {
		return SettlementResult{}, err
	}

	result := SettlementResult{
		TotalWinners: decimal.Zero,
		TotalLosers:  decimal.Zero,
		Unsettled:    decimal.Zero,
	}

	balances := make(map[string]decimal.Decimal, len(players))
	for _, p := range players {
		balances[p.Name] = p.PL
		if p.PL.IsPositive() {
			result.TotalWinners = result.TotalWinners.Add(p.PL)
		} else {
			result.TotalLosers = result.TotalLosers.Add(p.PL.Neg())
		}
	}

	edges, residual := settle.Solve(balances)
	if !residual.IsZero() {
		result.Unsettled = residual.Amount
		if residual.Creditors {
			result.UnsettledSide = "creditors"
		} else {
			result.UnsettledSide = "debtors"
		}
		slog.Warn("player balances do not sum to zero, residual left unsettled",
			"event", event, "residual", residual.Amount, "side", result.UnsettledSide)
	}

	prior, err := t.store.GetSettlements(ctx, event)
	if err != nil {
		return SettlementResult{}, err
	}
	paid := make(map[string]bool, len(prior))
	for _, e := range prior {
		if e.Paid {
			paid[e.From+"\x00"+e.To] = true
		}
	}

	for _, e := range edges {
		result.Edges = append(result.Edges, models.SettlementEdge{
			From:   e.From,
			To:     e.To,
			Amount: e.Amount,
			Paid:   paid[e.From+"\x00"+e.To],
		})
	}

	if err := t.store.ReplaceSettlements(ctx, event, result.Edges); err != nil {
		return SettlementResult{}, err
	}
	return result, nil
}

// MarkPaid records whether the (from, to) transfer has been made. The flag
// survives settlement recomputations for as long as the pair does.
func (t *Tracker) MarkPaid(ctx context.Context, event, from, to string, paid bool) error {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" || to == "" {
		return storage.Validationf("settlement", "debtor and creditor names required")
	}

	if err := t.store.SetSettlementPaid(ctx, event, from, to, paid); err != nil {
		return err
	}
	slog.Info("settlement flag updated", "event", event, "from", from, "to", to, "paid", paid)
	t.notify(fmt.Sprintf("Mark %s->%s %s for %q", from, to, paidWord(paid), event))
	return nil
}

func paidWord(paid bool) string {
	if paid {
		return "paid"
	}
	return "unpaid"
}

// Clear removes an event's players and settlement flags while keeping the
// event itself.
func (t *Tracker) Clear(ctx context.Context, event string) error {
	if err := t.store.ClearEvent(ctx, event); err != nil {
		return err
	}
	slog.Info("event cleared", "event", event)
	t.notify(fmt.Sprintf("Clear event %q", event))
	return nil
}

// Health reports store reachability and remote sync status without
// mutating any state.
type Health struct {
	StoreOK           bool   `json:"store_ok"`
	StoreError        string `json:"store_error,omitempty"`
	SyncEnabled       bool   `json:"sync_enabled"`
	SyncAuthenticated bool   `json:"sync_authenticated"`
	SyncError         string `json:"sync_error,omitempty"`
}

// CheckHealth probes the store and, when sync is enabled, the remote
// credential.
func (t *Tracker) CheckHealth(ctx context.Context) Health {
	h := Health{StoreOK: true}

	if err := t.store.Ping(ctx); err != nil {
		h.StoreOK = false
		h.StoreError = err.Error()
	}

	if t.syncer != nil && t.syncer.Enabled() {
		h.SyncEnabled = true
		if err := t.syncer.CheckAuth(ctx); err != nil {
			h.SyncError = err.Error()
		} else {
			h.SyncAuthenticated = true
		}
	}
	return h
}
