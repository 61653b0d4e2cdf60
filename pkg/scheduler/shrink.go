package scheduler

import (
	"bytes"

	"github.com/klauspost/compress/zstd"
)

// shrinker wraps a PacketHandler's payload with zstd compression before it
// is handed to Encode, buying back byte budget for a terminal whose FIFO
// is persistently overflowing (DESIGN.md: klauspost/compress optional
// payload-shrink hook). This never touches the frame layout defined in
// frame.go -- it only changes what bytes the packet-handler is asked to
// fit. Those compressed bytes are what the emitted DvbRcsFrame carries;
// nothing in this repository expands them on receipt.
type shrinker struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newShrinker() (*shrinker, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &shrinker{encoder: enc, decoder: dec}, nil
}

// shrink compresses payload, returning it unchanged if compression didn't
// actually help (small packets often don't).
func (s *shrinker) shrink(payload []byte) []byte {
	compressed := s.encoder.EncodeAll(payload, nil)
	if len(compressed) >= len(payload) {
		return payload
	}
	return compressed
}

// expand reverses shrink, for a decoding peer that knows a given FIFO was
// in shrink mode. No code in this repository calls it.
func (s *shrinker) expand(payload []byte) ([]byte, error) {
	return s.decoder.DecodeAll(payload, nil)
}

// isZstdFrame reports whether payload begins with the zstd magic number,
// used to decide whether expand is needed.
func isZstdFrame(payload []byte) bool {
	return bytes.HasPrefix(payload, []byte{0x28, 0xb5, 0x2f, 0xfd})
}
