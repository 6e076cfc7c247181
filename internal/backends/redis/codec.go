package redis

import (
	"github.com/klauspost/compress/zstd"
)

// Cached responses larger than this are zstd-compressed before being written.
const compressThreshold = 512

const (
	flagRaw  byte = 0
	flagZstd byte = 1
)

var enc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
var dec, _ = zstd.NewReader(nil)

// encodeValue prefixes the payload with a one-byte flag telling whether it is compressed.
func encodeValue(b []byte) []byte {
	if len(b) < compressThreshold {
		return append([]byte{flagRaw}, b...)
	}
	out := make([]byte, 1, len(b)/2+1)
	out[0] = flagZstd
	return enc.EncodeAll(b, out)
}

func decodeValue(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errEmptyValue
	}
	switch b[0] {
	case flagRaw:
		return b[1:], nil
	case flagZstd:
		return dec.DecodeAll(b[1:], nil)
	default:
		return nil, errUnknownEncoding
	}
}
