package state

import (
	"context"

	"github.com/yanun0323/errors"

	"main/internal/codec"
	"main/internal/recorder"
	"main/internal/schema"
)

// RecoverConfig controls snapshot plus journal-tail recovery.
type RecoverConfig struct {
	JournalDir     string
	SnapshotPath   string
	SegmentPrefix  string
	SkipChecksum   bool
	MaxPayloadSize int
	UseRecvTime    bool
}

// RecoverResult contains recovered positions and stream metadata.
type RecoverResult struct {
	Positions   *PositionReducer
	LastSeq     uint64
	LastEventTs int64
}

// RecoverPositions loads the snapshot, then replays the journal tail
// past the snapshot's sequence to rebuild net positions.
func RecoverPositions(ctx context.Context, cfg RecoverConfig) (RecoverResult, error) {
	if cfg.JournalDir == "" {
		return RecoverResult{}, errors.New("journal dir is empty")
	}
	positions := NewPositionReducer()
	var lastSeq uint64
	var lastEventTs int64

	if cfg.SnapshotPath != "" {
		snapshot, err := ReadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return RecoverResult{}, err
		}
		positions.ApplySnapshot(snapshot)
		lastSeq = snapshot.LastSeq
		lastEventTs = snapshot.LastEventTs
	}

	replay, err := recorder.NewReplay(recorder.ReplayConfig{
		Dir:            cfg.JournalDir,
		SegmentPrefix:  cfg.SegmentPrefix,
		Speed:          0,
		UseRecvTime:    cfg.UseRecvTime,
		SkipChecksum:   cfg.SkipChecksum,
		MaxPayloadSize: cfg.MaxPayloadSize,
	})
	if err != nil {
		return RecoverResult{}, err
	}

	err = replay.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		if lastSeq > 0 && header.Seq <= lastSeq {
			return nil
		}
		if lastSeq == 0 && lastEventTs > 0 {
			ts := header.TsEvent
			if cfg.UseRecvTime {
				ts = header.TsRecv
			}
			if ts <= lastEventTs {
				return nil
			}
		}
		if header.Seq > lastSeq {
			lastSeq = header.Seq
		}
		if header.TsEvent > lastEventTs {
			lastEventTs = header.TsEvent
		}

		if header.Type != schema.EventFill {
			return nil
		}
		fill, ok := codec.DecodeFill(payload)
		if !ok {
			return errors.Errorf("decode fill failed at seq %d", header.Seq)
		}
		positions.ApplyFill(fill)
		return nil
	})
	if err != nil {
		return RecoverResult{}, err
	}

	return RecoverResult{
		Positions:   positions,
		LastSeq:     lastSeq,
		LastEventTs: lastEventTs,
	}, nil
}
