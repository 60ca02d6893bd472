package state

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Snapshot captures net positions at a point in time together with the
// last audit sequence folded into them.
type Snapshot struct {
	Timestamp   int64           `json:"timestamp"`
	LastSeq     uint64          `json:"lastSeq"`
	LastEventTs int64           `json:"lastEventTs"`
	Positions   []PositionEntry `json:"positions"`
}

// PositionEntry is a single net position entry.
type PositionEntry struct {
	AccountID    schema.AccountID    `json:"accountId"`
	StrategyID   schema.StrategyID   `json:"strategyId"`
	InstrumentID schema.InstrumentID `json:"instrumentId"`
	NetPos       schema.Quantity     `json:"netPos"`
}

func (e PositionEntry) key() PositionKey {
	return PositionKey{
		AccountID:    e.AccountID,
		StrategyID:   e.StrategyID,
		InstrumentID: e.InstrumentID,
	}
}

// Snapshot builds a snapshot from current positions.
func (r *PositionReducer) Snapshot() Snapshot {
	return r.SnapshotWithMeta(0, 0)
}

// SnapshotWithMeta builds a snapshot carrying audit stream metadata.
func (r *PositionReducer) SnapshotWithMeta(lastSeq uint64, lastEventTs int64) Snapshot {
	entries := make([]PositionEntry, 0, len(r.positions))
	for key, qty := range r.positions {
		entries = append(entries, PositionEntry{
			AccountID:    key.AccountID,
			StrategyID:   key.StrategyID,
			InstrumentID: key.InstrumentID,
			NetPos:       qty,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		if a.StrategyID != b.StrategyID {
			return a.StrategyID < b.StrategyID
		}
		return a.InstrumentID < b.InstrumentID
	})
	return Snapshot{
		Timestamp:   time.Now().UTC().UnixNano(),
		LastSeq:     lastSeq,
		LastEventTs: lastEventTs,
		Positions:   entries,
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots checks that two snapshots carry the same positions.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Positions) != len(actual.Positions) {
		return errors.Errorf("snapshot length mismatch: expected=%d actual=%d",
			len(expected.Positions), len(actual.Positions))
	}
	expectedMap := make(map[PositionKey]schema.Quantity, len(expected.Positions))
	for _, entry := range expected.Positions {
		expectedMap[entry.key()] = entry.NetPos
	}
	for _, entry := range actual.Positions {
		want, ok := expectedMap[entry.key()]
		if !ok {
			return errors.Errorf("snapshot missing entry: account=%d strategy=%d instrument=%d",
				entry.AccountID, entry.StrategyID, entry.InstrumentID)
		}
		if want != entry.NetPos {
			return errors.Errorf("snapshot netPos mismatch: instrument=%d expected=%d actual=%d",
				entry.InstrumentID, want, entry.NetPos)
		}
	}
	return nil
}
