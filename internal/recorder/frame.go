package recorder

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

const (
	frameVersion uint16 = 1

	frameHeaderSize   = 56
	frameChecksumSize = 4
)

var (
	frameMagic = [4]byte{'A', 'U', 'D', '1'}
	crcTable   = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrBadMagic        = errors.New("audit frame bad magic")
	ErrBadFrameVersion = errors.New("audit frame unsupported version")
	ErrShortFrame      = errors.New("audit frame truncated header")
	ErrChecksum        = errors.New("audit frame checksum mismatch")
	ErrPayloadTooLarge = errors.New("audit frame payload too large")
)

const maxFramePayload = uint64(^uint32(0))

// encodeFrameHeader writes the fixed frame header for one audit event.
// The layout is little-endian and versioned by frameVersion.
func encodeFrameHeader(dst []byte, header schema.EventHeader, payloadLen int) {
	_ = dst[frameHeaderSize-1]
	copy(dst[0:4], frameMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], frameVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(frameHeaderSize))
	binary.LittleEndian.PutUint64(dst[8:16], header.Seq)
	binary.LittleEndian.PutUint16(dst[16:18], uint16(header.Type))
	binary.LittleEndian.PutUint16(dst[18:20], header.Version)
	binary.LittleEndian.PutUint16(dst[20:22], header.Source)
	binary.LittleEndian.PutUint16(dst[22:24], header.Flags)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(header.TsEvent))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(header.TsRecv))
	binary.LittleEndian.PutUint64(dst[40:48], header.TraceID)
	binary.LittleEndian.PutUint32(dst[48:52], uint32(payloadLen))
	binary.LittleEndian.PutUint32(dst[52:56], 0)
}

func decodeFrameHeader(src []byte) (schema.EventHeader, uint32, error) {
	if len(src) < frameHeaderSize {
		return schema.EventHeader{}, 0, ErrShortFrame
	}
	if !bytes.Equal(src[0:4], frameMagic[:]) {
		return schema.EventHeader{}, 0, ErrBadMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != frameVersion {
		return schema.EventHeader{}, 0, ErrBadFrameVersion
	}
	if size := binary.LittleEndian.Uint16(src[6:8]); size != frameHeaderSize {
		return schema.EventHeader{}, 0, ErrShortFrame
	}
	h := schema.EventHeader{
		Seq:     binary.LittleEndian.Uint64(src[8:16]),
		Type:    schema.EventType(binary.LittleEndian.Uint16(src[16:18])),
		Version: binary.LittleEndian.Uint16(src[18:20]),
		Source:  binary.LittleEndian.Uint16(src[20:22]),
		Flags:   binary.LittleEndian.Uint16(src[22:24]),
		TsEvent: int64(binary.LittleEndian.Uint64(src[24:32])),
		TsRecv:  int64(binary.LittleEndian.Uint64(src[32:40])),
		TraceID: binary.LittleEndian.Uint64(src[40:48]),
	}
	payloadLen := binary.LittleEndian.Uint32(src[48:52])
	return h, payloadLen, nil
}

func frameChecksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}
