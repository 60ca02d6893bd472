package recorder

import (
	"bufio"
	"encoding/binary"
	"io"

	"main/internal/schema"
)

// ScanOptions controls frame decoding.
type ScanOptions struct {
	SkipChecksum   bool
	MaxPayloadSize int
}

// Scanner decodes audit frames from a segment stream in order.
type Scanner struct {
	r         *bufio.Reader
	opts      ScanOptions
	headerBuf []byte
	payload   []byte
}

// NewScanner wraps an io.Reader with frame decoding.
func NewScanner(r io.Reader, opts ScanOptions) *Scanner {
	return &Scanner{
		r:         bufio.NewReader(r),
		opts:      opts,
		headerBuf: make([]byte, frameHeaderSize),
	}
}

// Next returns the next frame header and payload. The payload slice is
// reused and only valid until the following call.
func (s *Scanner) Next() (schema.EventHeader, []byte, error) {
	var header schema.EventHeader

	n, err := io.ReadFull(s.r, s.headerBuf)
	if err != nil {
		if err == io.EOF && n == 0 {
			return header, nil, io.EOF
		}
		return header, nil, err
	}

	header, payloadLen, err := decodeFrameHeader(s.headerBuf)
	if err != nil {
		return header, nil, err
	}
	if s.opts.MaxPayloadSize > 0 && payloadLen > uint32(s.opts.MaxPayloadSize) {
		return header, nil, ErrPayloadTooLarge
	}

	if payloadLen > 0 {
		if cap(s.payload) < int(payloadLen) {
			s.payload = make([]byte, payloadLen)
		}
		s.payload = s.payload[:payloadLen]
		if _, err := io.ReadFull(s.r, s.payload); err != nil {
			return header, nil, err
		}
	} else {
		s.payload = s.payload[:0]
	}

	var checksumBuf [frameChecksumSize]byte
	if _, err := io.ReadFull(s.r, checksumBuf[:]); err != nil {
		return header, nil, err
	}

	if !s.opts.SkipChecksum {
		expected := binary.LittleEndian.Uint32(checksumBuf[:])
		if frameChecksum(s.headerBuf, s.payload) != expected {
			return header, nil, ErrChecksum
		}
	}

	return header, s.payload, nil
}
