package internal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/xxh3"
)

// Compression identifies the codec a stored record payload was written with.
type Compression uint8

const (
	NoCompression     Compression = 0x0
	SnappyCompression Compression = 0x1
	LZ4Compression    Compression = 0x4
	ZstdCompression   Compression = 0x7
)

// String returns the name accepted by ParseCompression.
func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case SnappyCompression:
		return "snappy"
	case LZ4Compression:
		return "lz4"
	case ZstdCompression:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none", "":
		return NoCompression, nil
	case "snappy":
		return SnappyCompression, nil
	case "lz4":
		return LZ4Compression, nil
	case "zstd":
		return ZstdCompression, nil
	}
	return 0, fmt.Errorf("unsupported compression: %s", name)
}

// record header: 1 byte codec followed by the little endian xxh3 of the payload.
const recordHeaderLen = 1 + 8

var (
	ErrRecordTooShort   = errors.New("record is truncated")
	ErrChecksumMismatch = errors.New("record checksum mismatch")
)

// EncodeRecord compresses data and frames it with its codec and checksum.
func EncodeRecord(c Compression, data []byte) ([]byte, error) {
	payload, err := compress(c, data)
	if err != nil {
		return nil, err
	}

	rec := make([]byte, recordHeaderLen, recordHeaderLen+len(payload))
	rec[0] = byte(c)
	binary.LittleEndian.PutUint64(rec[1:recordHeaderLen], xxh3.Hash(payload))
	return append(rec, payload...), nil
}

// DecodeRecord verifies and decompresses a record written by EncodeRecord.
// The codec is read from the record, not from the current configuration.
func DecodeRecord(rec []byte) ([]byte, error) {
	if len(rec) < recordHeaderLen {
		return nil, ErrRecordTooShort
	}

	payload := rec[recordHeaderLen:]
	if binary.LittleEndian.Uint64(rec[1:recordHeaderLen]) != xxh3.Hash(payload) {
		return nil, ErrChecksumMismatch
	}
	return decompress(Compression(rec[0]), payload)
}

func compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return data, nil

	case SnappyCompression:
		return snappy.Encode(nil, data), nil

	case LZ4Compression:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 close: %w", err)
		}
		return buf.Bytes(), nil

	case ZstdCompression:
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		defer encoder.Close()
		return encoder.EncodeAll(data, nil), nil
	}
	return nil, fmt.Errorf("unsupported compression: %s", c)
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return data, nil

	case SnappyCompression:
		return snappy.Decode(nil, data)

	case LZ4Compression:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))

	case ZstdCompression:
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer decoder.Close()
		return decoder.DecodeAll(data, nil)
	}
	return nil, fmt.Errorf("unsupported compression: %s", c)
}
