package recorder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func journalConfig(dir string) Config {
	return Config{Dir: dir, SegmentPrefix: "test"}
}

func appendFrames(t *testing.T, dir string, frames []frameRequest) {
	t.Helper()
	j, err := NewJournal(journalConfig(dir))
	require.NoError(t, err)
	require.NoError(t, j.Start(context.Background()))
	for _, frame := range frames {
		require.NoError(t, j.Append(frame.header, frame.payload))
	}
	require.NoError(t, j.Close())
}

func segmentPaths(t *testing.T, dir string) []string {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(dir, "test-*.aud"))
	require.NoError(t, err)
	return paths
}

func TestJournalWriteScanRoundTrip(t *testing.T) {
	dir := t.TempDir()
	frames := []frameRequest{
		{header: schema.NewHeader(schema.EventFill, 1, 1, 100, 101), payload: []byte("first")},
		{header: schema.NewHeader(schema.EventAlert, 2, 2, 200, 201), payload: nil},
		{header: schema.NewHeader(schema.EventOrderAck, 1, 3, 300, 301), payload: []byte{0x00, 0xff, 0x7f}},
	}
	appendFrames(t, dir, frames)

	paths := segmentPaths(t, dir)
	require.Len(t, paths, 1)

	file, err := os.Open(paths[0])
	require.NoError(t, err)
	defer file.Close()

	scanner := NewScanner(file, ScanOptions{})
	for i, frame := range frames {
		header, payload, err := scanner.Next()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, frame.header.Type, header.Type)
		assert.Equal(t, frame.header.Seq, header.Seq)
		assert.Equal(t, frame.header.TsEvent, header.TsEvent)
		assert.Equal(t, frame.header.TsRecv, header.TsRecv)
		assert.Equal(t, schema.SchemaVersion, header.Version)
		if len(frame.payload) == 0 {
			assert.Empty(t, payload)
		} else {
			assert.Equal(t, frame.payload, payload)
		}
	}
	_, _, err = scanner.Next()
	assert.Equal(t, io.EOF, err)
}

func TestScannerDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	appendFrames(t, dir, []frameRequest{
		{header: schema.NewHeader(schema.EventFill, 1, 1, 100, 101), payload: []byte("payload")},
	})

	paths := segmentPaths(t, dir)
	require.Len(t, paths, 1)
	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)

	// flip a payload byte
	raw[frameHeaderSize] ^= 0xff
	corrupted := filepath.Join(dir, "corrupted.aud")
	require.NoError(t, os.WriteFile(corrupted, raw, 0o644))

	file, err := os.Open(corrupted)
	require.NoError(t, err)
	defer file.Close()

	_, _, err = NewScanner(file, ScanOptions{}).Next()
	assert.ErrorIs(t, err, ErrChecksum)

	// checksum verification can be bypassed for salvage
	_, err = file.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, payload, err := NewScanner(file, ScanOptions{SkipChecksum: true}).Next()
	require.NoError(t, err)
	assert.NotEqual(t, []byte("payload"), payload)
}

func TestScannerRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.aud")
	garbage := make([]byte, frameHeaderSize+8)
	copy(garbage, "not a journal segment")
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	_, _, err = NewScanner(file, ScanOptions{}).Next()
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestJournalSegmentRotationBySize(t *testing.T) {
	dir := t.TempDir()
	cfg := journalConfig(dir)
	// each frame is header + 16 payload + checksum; force one frame per segment
	cfg.SegmentMaxBytes = int64(frameHeaderSize + 16 + frameChecksumSize)

	j, err := NewJournal(cfg)
	require.NoError(t, err)
	require.NoError(t, j.Start(context.Background()))
	payload := make([]byte, 16)
	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, j.Append(schema.NewHeader(schema.EventFill, 1, seq, 0, 0), payload))
	}
	require.NoError(t, j.Close())

	assert.Len(t, segmentPaths(t, dir), 3)
}

func TestJournalAppendAfterCloseFails(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(journalConfig(dir))
	require.NoError(t, err)
	require.NoError(t, j.Start(context.Background()))
	require.NoError(t, j.Close())

	err = j.Append(schema.NewHeader(schema.EventFill, 1, 1, 0, 0), nil)
	assert.ErrorIs(t, err, ErrJournalClosed)
}

func TestReplayWalksSegmentsInOrder(t *testing.T) {
	dir := t.TempDir()
	cfg := journalConfig(dir)
	cfg.SegmentMaxBytes = int64(frameHeaderSize + 8 + frameChecksumSize)

	j, err := NewJournal(cfg)
	require.NoError(t, err)
	require.NoError(t, j.Start(context.Background()))
	payload := make([]byte, 8)
	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, j.Append(schema.NewHeader(schema.EventFill, 1, seq, int64(seq), 0), payload))
	}
	require.NoError(t, j.Close())
	require.Len(t, segmentPaths(t, dir), 5)

	replay, err := NewReplay(ReplayConfig{Dir: dir, SegmentPrefix: "test"})
	require.NoError(t, err)

	var seqs []uint64
	err = replay.Run(context.Background(), func(header schema.EventHeader, payload []byte) error {
		seqs = append(seqs, header.Seq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seqs)
}
