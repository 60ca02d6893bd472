package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

const (
	defaultSegmentMaxBytes int64 = 1 << 30
	defaultQueueSize             = 4096
	defaultBufferSize            = 256 * 1024
	defaultSegmentPrefix         = "audit"
)

var defaultSegmentMaxAge = 5 * time.Minute

var (
	ErrJournalFull       = errors.New("audit journal queue full")
	ErrJournalClosed     = errors.New("audit journal closed")
	ErrJournalNotStarted = errors.New("audit journal not started")
	ErrJournalStarted    = errors.New("audit journal already started")
)

// Config controls journal segment rotation and write buffering.
type Config struct {
	Dir             string        `json:"dir"`
	SegmentMaxBytes int64         `json:"segmentMaxBytes"`
	SegmentMaxAge   time.Duration `json:"segmentMaxAge"`
	SegmentPrefix   string        `json:"segmentPrefix"`
	QueueSize       int           `json:"queueSize"`
	BufferSize      int           `json:"bufferSize"`
	FlushInterval   time.Duration `json:"flushInterval"`
	SyncInterval    time.Duration `json:"syncInterval"`
}

func (c Config) withDefaults() Config {
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.SegmentMaxAge == 0 {
		c.SegmentMaxAge = defaultSegmentMaxAge
	}
	if c.SegmentPrefix == "" {
		c.SegmentPrefix = defaultSegmentPrefix
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Dir == "" {
		return errors.New("invalid journal config: Dir is empty")
	}
	if c.SegmentMaxBytes <= 0 {
		return errors.New("invalid journal config: SegmentMaxBytes must be > 0")
	}
	if c.QueueSize <= 0 {
		return errors.New("invalid journal config: QueueSize must be > 0")
	}
	if c.BufferSize <= 0 {
		return errors.New("invalid journal config: BufferSize must be > 0")
	}
	if c.FlushInterval < 0 || c.SyncInterval < 0 {
		return errors.New("invalid journal config: intervals must be >= 0")
	}
	return nil
}

type frameRequest struct {
	header  schema.EventHeader
	payload []byte
}

type segment struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

func (s *segment) flush() error {
	if s == nil {
		return nil
	}
	return s.buf.Flush()
}

func (s *segment) sync() error {
	if s == nil {
		return nil
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *segment) close() error {
	if s == nil {
		return nil
	}
	if err := s.sync(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}

// Journal appends audit frames to rotating segment files.
// Append is non-blocking; a dedicated goroutine owns the actual IO.
type Journal struct {
	cfg Config
	ch  chan frameRequest
	wg  sync.WaitGroup
	err atomic.Value

	started uint32
	closed  uint32
	drops   uint64
}

// NewJournal creates a journal and ensures the segment directory exists.
func NewJournal(cfg Config) (*Journal, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create journal dir %s", cfg.Dir)
	}
	return &Journal{
		cfg: cfg,
		ch:  make(chan frameRequest, cfg.QueueSize),
	}, nil
}

// Start runs the write loop in a new goroutine.
func (j *Journal) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&j.started, 0, 1) {
		return ErrJournalStarted
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.run(ctx)
	}()
	return nil
}

// Close stops the journal, flushes buffered frames, and syncs the last
// segment.
func (j *Journal) Close() error {
	if atomic.CompareAndSwapUint32(&j.closed, 0, 1) {
		close(j.ch)
	}
	j.wg.Wait()
	return j.Err()
}

// Err returns the first IO error observed by the write loop.
func (j *Journal) Err() error {
	if v := j.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Drops returns the number of frames discarded because the queue was full.
func (j *Journal) Drops() uint64 { return atomic.LoadUint64(&j.drops) }

// Append enqueues one event without blocking. The payload is copied so
// the caller may reuse its buffer.
func (j *Journal) Append(header schema.EventHeader, payload []byte) error {
	if atomic.LoadUint32(&j.closed) != 0 {
		return ErrJournalClosed
	}
	if atomic.LoadUint32(&j.started) == 0 {
		return ErrJournalNotStarted
	}
	if err := j.Err(); err != nil {
		return err
	}
	if uint64(len(payload)) > maxFramePayload {
		return ErrPayloadTooLarge
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}
	var cp []byte
	if len(payload) > 0 {
		cp = make([]byte, len(payload))
		copy(cp, payload)
	}
	select {
	case j.ch <- frameRequest{header: header, payload: cp}:
		return nil
	default:
		atomic.AddUint64(&j.drops, 1)
		return ErrJournalFull
	}
}

func (j *Journal) run(ctx context.Context) {
	var (
		seg   *segment
		segID uint64

		headerBuf   = make([]byte, frameHeaderSize)
		checksumBuf [frameChecksumSize]byte

		flushC <-chan time.Time
		syncC  <-chan time.Time
	)

	if j.cfg.FlushInterval > 0 {
		t := time.NewTicker(j.cfg.FlushInterval)
		defer t.Stop()
		flushC = t.C
	}
	if j.cfg.SyncInterval > 0 {
		t := time.NewTicker(j.cfg.SyncInterval)
		defer t.Stop()
		syncC = t.C
	}

	defer func() {
		if err := seg.close(); err != nil && j.Err() == nil {
			j.setErr(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			j.drain(&seg, &segID, headerBuf, &checksumBuf)
			return
		case req, ok := <-j.ch:
			if !ok {
				return
			}
			if err := j.writeFrame(&seg, &segID, headerBuf, &checksumBuf, req); err != nil {
				j.setErr(err)
				return
			}
		case <-flushC:
			if err := seg.flush(); err != nil {
				j.setErr(err)
				return
			}
		case <-syncC:
			if err := seg.sync(); err != nil {
				j.setErr(err)
				return
			}
		}
	}
}

// drain writes whatever is already queued without blocking for more.
func (j *Journal) drain(seg **segment, segID *uint64, headerBuf []byte, checksumBuf *[frameChecksumSize]byte) {
	for {
		select {
		case req, ok := <-j.ch:
			if !ok {
				return
			}
			if err := j.writeFrame(seg, segID, headerBuf, checksumBuf, req); err != nil {
				j.setErr(err)
				return
			}
		default:
			return
		}
	}
}

func (j *Journal) writeFrame(seg **segment, segID *uint64, headerBuf []byte, checksumBuf *[frameChecksumSize]byte, req frameRequest) error {
	now := time.Now().UTC()
	frameSize := int64(frameHeaderSize + len(req.payload) + frameChecksumSize)
	if j.shouldRotate(*seg, now, frameSize) {
		if err := (*seg).close(); err != nil {
			return err
		}
		opened, err := j.openSegment(segID, now)
		if err != nil {
			return err
		}
		*seg = opened
	}

	encodeFrameHeader(headerBuf, req.header, len(req.payload))
	binary.LittleEndian.PutUint32(checksumBuf[:], frameChecksum(headerBuf, req.payload))

	if _, err := (*seg).buf.Write(headerBuf); err != nil {
		return err
	}
	if len(req.payload) > 0 {
		if _, err := (*seg).buf.Write(req.payload); err != nil {
			return err
		}
	}
	if _, err := (*seg).buf.Write(checksumBuf[:]); err != nil {
		return err
	}
	(*seg).size += frameSize
	return nil
}

func (j *Journal) shouldRotate(seg *segment, now time.Time, nextSize int64) bool {
	if seg == nil {
		return true
	}
	if j.cfg.SegmentMaxBytes > 0 && seg.size+nextSize > j.cfg.SegmentMaxBytes {
		return true
	}
	if j.cfg.SegmentMaxAge > 0 && now.Sub(seg.openedAt) >= j.cfg.SegmentMaxAge {
		return true
	}
	return false
}

func (j *Journal) openSegment(segID *uint64, now time.Time) (*segment, error) {
	ts := now.Format("20060102-150405")
	for {
		*segID = *segID + 1
		name := j.cfg.SegmentPrefix + "-" + ts + "-" + segmentSuffix(*segID)
		path := filepath.Join(j.cfg.Dir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "open segment %s", path)
		}
		return &segment{
			file:     file,
			buf:      bufio.NewWriterSize(file, j.cfg.BufferSize),
			openedAt: now,
		}, nil
	}
}

func segmentSuffix(id uint64) string {
	const digits = "0123456789"
	var b [6]byte
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = digits[id%10]
		id /= 10
	}
	return string(b[:]) + ".aud"
}

func (j *Journal) setErr(err error) {
	if err == nil || j.err.Load() != nil {
		return
	}
	j.err.Store(err)
}
