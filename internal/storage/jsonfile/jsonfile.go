// Package jsonfile provides a crash-safe JSON file implementation of the
// storage.Store interface.
//
// Each document lives in its own file under the data directory:
//
//	events.json       []models.Event
//	players.json      map[event][]models.Player
//	settlements.json  map[event][]models.SettlementEdge
//
// Writes follow a backup / temp / rename protocol: the current live file is
// first copied to a shadow backup, the new contents are serialized to a temp
// file in the same directory, and the temp file is atomically renamed over
// the live path. Readers therefore always see either the old complete
// document or the new complete document. Reads that hit a corrupted live
// file fall back to the shadow backup and restore it as the live copy; if
// both copies are unreadable the document degrades to its empty default
// rather than failing the caller.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/indranil/pokerledger/internal/metrics"
	"github.com/indranil/pokerledger/internal/models"
	"github.com/indranil/pokerledger/internal/storage"
)

const (
	eventsFile      = "events.json"
	playersFile     = "players.json"
	settlementsFile = "settlements.json"

	backupSuffix = ".bak"
)

// Ensure FileStore implements storage.Store
var _ storage.Store = (*FileStore)(nil)

// FileStore implements storage.Store on top of JSON files.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a FileStore rooted at dir, creating the directory if needed.
func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Close implements storage.Store. The file store holds no open handles.
func (s *FileStore) Close() error { return nil }

// lockFor returns the write lock serializing mutations of one document.
// Writes to different documents proceed independently.
func (s *FileStore) lockFor(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// loadDoc reads and decodes one document. Read paths call it lock-free;
// when the live copy fails to load it falls through to the locked recovery
// path so a backup restore never races a concurrent writer on the same
// document.
func loadDoc[T any](s *FileStore, name string, empty T) T {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return empty
	}
	if err == nil {
		var v T
		if json.Unmarshal(data, &v) == nil {
			return v
		}
	}

	l := s.lockFor(name)
	l.Lock()
	defer l.Unlock()
	return loadDocLocked(s, name, empty)
}

// loadDocLocked is loadDoc for callers already holding the document's write
// lock. It re-reads the live file first: by the time the lock was acquired a
// writer may have recovered or replaced it. Corruption of the live file is
// recovered from the shadow backup; double corruption degrades to the empty
// default. Neither case is an error for the caller: the store must keep
// functioning.
func loadDocLocked[T any](s *FileStore, name string, empty T) T {
	path := filepath.Join(s.dir, name)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return empty
	}
	if err == nil {
		var v T
		jsonErr := json.Unmarshal(data, &v)
		if jsonErr == nil {
			return v
		}
		slog.Error("live record corrupted, trying backup", "file", name, "error", jsonErr)
	} else {
		slog.Error("failed to read live record, trying backup", "file", name, "error", err)
	}

	// Live copy is unreadable; try the shadow backup.
	bak, bakErr := os.ReadFile(path + backupSuffix)
	if bakErr == nil {
		var v T
		jsonErr := json.Unmarshal(bak, &v)
		if jsonErr == nil {
			metrics.StoreCorruptionRecovered.Inc()
			slog.Warn("recovered record from shadow backup", "file", name)
			if restoreErr := writeAtomic(s.dir, name, bak); restoreErr != nil {
				slog.Error("failed to restore live record from backup", "file", name, "error", restoreErr)
			}
			return v
		}
		bakErr = jsonErr
	}

	slog.Error("data loss: live record and backup both unreadable, using empty default",
		"file", name, "backup_error", bakErr)
	return empty
}

// saveDoc serializes v and commits it with the backup/temp/rename protocol.
// The caller must hold the document's write lock.
func saveDoc[T any](s *FileStore, name string, v T) error {
	path := filepath.Join(s.dir, name)

	// Shadow the current live copy before touching anything.
	if current, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+backupSuffix, current, 0o644); err != nil {
			return fmt.Errorf("failed to write shadow backup for %s: %w", name, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read current %s: %w", name, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	if err := writeAtomic(s.dir, name, data); err != nil {
		return err
	}
	metrics.StoreWrites.Inc()
	return nil
}

// writeAtomic commits data to dir/name via a same-directory temp file and
// rename, so the live path only ever holds a complete document.
func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file for %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return nil
}

// update runs a read-modify-write cycle on one document under its lock.
func update[T any](s *FileStore, name string, empty T, fn func(T) (T, error)) error {
	l := s.lockFor(name)
	l.Lock()
	defer l.Unlock()

	v := loadDocLocked(s, name, empty)
	v, err := fn(v)
	if err != nil {
		return err
	}
	return saveDoc(s, name, v)
}

func (s *FileStore) loadEvents() []models.Event {
	return loadDoc(s, eventsFile, []models.Event(nil))
}

func (s *FileStore) loadPlayers() map[string][]models.Player {
	return loadDoc(s, playersFile, map[string][]models.Player{})
}

func (s *FileStore) loadSettlements() map[string][]models.SettlementEdge {
	return loadDoc(s, settlementsFile, map[string][]models.SettlementEdge{})
}

// ListEvents returns all events, newest first.
func (s *FileStore) ListEvents(ctx context.Context) ([]models.Event, error) {
	events := s.loadEvents()
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].Name < events[j].Name
	})
	return events, nil
}

// CreateEvent adds a new event.
func (s *FileStore) CreateEvent(ctx context.Context, event models.Event) error {
	return update(s, eventsFile, []models.Event(nil), func(events []models.Event) ([]models.Event, error) {
		for _, e := range events {
			if strings.EqualFold(e.Name, event.Name) {
				return nil, fmt.Errorf("event %q: %w", event.Name, storage.ErrExists)
			}
		}
		return append(events, event), nil
	})
}

// DeleteEvent removes an event and cascades to its players and settlements.
// Children go first: a crash mid-delete then leaves at most an empty event,
// never orphaned data that a later re-create of the same name would
// resurrect.
func (s *FileStore) DeleteEvent(ctx context.Context, name string) error {
	canonical, err := s.resolveEvent(name)
	if err != nil {
		return err
	}

	if err := update(s, playersFile, map[string][]models.Player{}, func(m map[string][]models.Player) (map[string][]models.Player, error) {
		delete(m, canonical)
		return m, nil
	}); err != nil {
		return err
	}
	if err := update(s, settlementsFile, map[string][]models.SettlementEdge{}, func(m map[string][]models.SettlementEdge) (map[string][]models.SettlementEdge, error) {
		delete(m, canonical)
		return m, nil
	}); err != nil {
		return err
	}

	return update(s, eventsFile, []models.Event(nil), func(events []models.Event) ([]models.Event, error) {
		for i, e := range events {
			if strings.EqualFold(e.Name, canonical) {
				return append(events[:i], events[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("event %q: %w", canonical, storage.ErrNotFound)
	})
}

// EventExists reports whether the named event is present.
func (s *FileStore) EventExists(ctx context.Context, name string) (bool, error) {
	_, err := s.resolveEvent(name)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// resolveEvent returns the stored spelling of the event name. Lookups follow
// the same case-insensitive rule as CreateEvent's duplicate check, and the
// stored spelling is the key for the player and settlement documents.
func (s *FileStore) resolveEvent(name string) (string, error) {
	for _, e := range s.loadEvents() {
		if strings.EqualFold(e.Name, name) {
			return e.Name, nil
		}
	}
	return "", fmt.Errorf("event %q: %w", name, storage.ErrNotFound)
}

// GetPlayers returns an event's players in saved order.
func (s *FileStore) GetPlayers(ctx context.Context, event string) ([]models.Player, error) {
	event, err := s.resolveEvent(event)
	if err != nil {
		return nil, err
	}
	return s.loadPlayers()[event], nil
}

// SavePlayers replaces the full player list for an event.
func (s *FileStore) SavePlayers(ctx context.Context, event string, players []models.Player) error {
	event, err := s.resolveEvent(event)
	if err != nil {
		return err
	}
	return update(s, playersFile, map[string][]models.Player{}, func(m map[string][]models.Player) (map[string][]models.Player, error) {
		m[event] = players
		return m, nil
	})
}

// ClearEvent drops an event's players and settlement flags.
func (s *FileStore) ClearEvent(ctx context.Context, event string) error {
	event, err := s.resolveEvent(event)
	if err != nil {
		return err
	}
	if err := update(s, playersFile, map[string][]models.Player{}, func(m map[string][]models.Player) (map[string][]models.Player, error) {
		delete(m, event)
		return m, nil
	}); err != nil {
		return err
	}
	return update(s, settlementsFile, map[string][]models.SettlementEdge{}, func(m map[string][]models.SettlementEdge) (map[string][]models.SettlementEdge, error) {
		delete(m, event)
		return m, nil
	})
}

// GetSettlements returns the stored settlement edges for an event.
func (s *FileStore) GetSettlements(ctx context.Context, event string) ([]models.SettlementEdge, error) {
	event, err := s.resolveEvent(event)
	if err != nil {
		return nil, err
	}
	return s.loadSettlements()[event], nil
}

// ReplaceSettlements swaps in a freshly computed edge set for an event.
func (s *FileStore) ReplaceSettlements(ctx context.Context, event string, edges []models.SettlementEdge) error {
	event, err := s.resolveEvent(event)
	if err != nil {
		return err
	}
	return update(s, settlementsFile, map[string][]models.SettlementEdge{}, func(m map[string][]models.SettlementEdge) (map[string][]models.SettlementEdge, error) {
		m[event] = edges
		return m, nil
	})
}

// SetSettlementPaid upserts the paid flag for the (from, to) pair.
func (s *FileStore) SetSettlementPaid(ctx context.Context, event, from, to string, paid bool) error {
	event, err := s.resolveEvent(event)
	if err != nil {
		return err
	}
	return update(s, settlementsFile, map[string][]models.SettlementEdge{}, func(m map[string][]models.SettlementEdge) (map[string][]models.SettlementEdge, error) {
		edges := m[event]
		for i := range edges {
			if edges[i].From == from && edges[i].To == to {
				edges[i].Paid = paid
				m[event] = edges
				return m, nil
			}
		}
		// No stored edge for the pair yet: record the flag so the next
		// recomputation carries it onto the real edge.
		m[event] = append(edges, models.SettlementEdge{From: from, To: to, Paid: paid})
		return m, nil
	})
}

// Export serializes the complete store contents.
func (s *FileStore) Export(ctx context.Context) ([]byte, error) {
	snap := storage.Snapshot{
		Events:      s.loadEvents(),
		Players:     s.loadPlayers(),
		Settlements: s.loadSettlements(),
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Ping verifies each document is loadable without mutating anything.
// A document counts as loadable if either its live copy or its shadow
// backup decodes.
func (s *FileStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("data directory unreachable: %w", err)
	}
	for _, name := range []string{eventsFile, playersFile, settlementsFile} {
		if err := s.checkLoadable(name); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) checkLoadable(name string) error {
	path := filepath.Join(s.dir, name)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil // absent means empty default, which always loads
	}
	if err == nil && json.Valid(data) {
		return nil
	}

	bak, bakErr := os.ReadFile(path + backupSuffix)
	if bakErr == nil && json.Valid(bak) {
		return nil
	}
	return fmt.Errorf("record %s unreadable and backup unavailable", name)
}
