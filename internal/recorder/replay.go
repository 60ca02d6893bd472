package recorder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// ReplayConfig controls journal replay.
type ReplayConfig struct {
	Dir            string
	SegmentPrefix  string
	Speed          float64
	UseRecvTime    bool
	SkipChecksum   bool
	MaxPayloadSize int
}

func (c ReplayConfig) withDefaults() ReplayConfig {
	if c.SegmentPrefix == "" {
		c.SegmentPrefix = defaultSegmentPrefix
	}
	return c
}

// Validate checks if the config is usable.
func (c ReplayConfig) Validate() error {
	if c.Dir == "" {
		return errors.New("invalid replay config: Dir is empty")
	}
	if c.Speed < 0 {
		return errors.New("invalid replay config: Speed must be >= 0")
	}
	if c.MaxPayloadSize < 0 {
		return errors.New("invalid replay config: MaxPayloadSize must be >= 0")
	}
	return nil
}

// Sleeper allows deterministic replay pacing in tests.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Replay walks journal segments in name order and hands each frame to a
// handler, optionally paced by the recorded timestamps.
type Replay struct {
	cfg   ReplayConfig
	sleep Sleeper
}

// NewReplay validates the config and creates a replay engine.
func NewReplay(cfg ReplayConfig) (*Replay, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Replay{cfg: cfg, sleep: realSleeper{}}, nil
}

// WithSleeper swaps the pacing implementation.
func (p *Replay) WithSleeper(s Sleeper) *Replay {
	if s != nil {
		p.sleep = s
	}
	return p
}

// Run replays every frame in segment order.
func (p *Replay) Run(ctx context.Context, handler func(schema.EventHeader, []byte) error) error {
	if handler == nil {
		return errors.New("replay handler is nil")
	}
	files, err := p.segments()
	if err != nil {
		return err
	}

	var prevTS int64
	for _, path := range files {
		if err := p.replayFile(ctx, path, handler, &prevTS); err != nil {
			return err
		}
	}
	return nil
}

func (p *Replay) segments() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		return nil, err
	}
	prefix := p.cfg.SegmentPrefix + "-"
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".aud") {
			continue
		}
		files = append(files, filepath.Join(p.cfg.Dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func (p *Replay) replayFile(ctx context.Context, path string, handler func(schema.EventHeader, []byte) error, prevTS *int64) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	sc := NewScanner(file, ScanOptions{
		SkipChecksum:   p.cfg.SkipChecksum,
		MaxPayloadSize: p.cfg.MaxPayloadSize,
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		header, payload, err := sc.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrapf(err, "read %s", path)
		}

		if err := p.pace(ctx, header, prevTS); err != nil {
			return err
		}
		if err := handler(header, payload); err != nil {
			return err
		}
	}
}

func (p *Replay) pace(ctx context.Context, header schema.EventHeader, prevTS *int64) error {
	if p.cfg.Speed <= 0 {
		return nil
	}
	ts := header.TsEvent
	if p.cfg.UseRecvTime {
		ts = header.TsRecv
	}
	if ts <= 0 {
		return nil
	}
	if *prevTS > 0 {
		if delta := ts - *prevTS; delta > 0 {
			wait := time.Duration(float64(delta) / p.cfg.Speed)
			if err := p.sleep.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	*prevTS = ts
	return nil
}
