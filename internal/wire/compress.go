package wire

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v3"

	"github.com/distfs/distfs/internal/dferr"
)

// CompressPayload applies the wire format's COMPRESSED flag codec (spec
// §4.1 leaves the algorithm unspecified for FlagCompressed; SPEC_FULL.md
// pins it to lz4 for its low-latency block-sized throughput).
func CompressPayload(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, dferr.Wrap(dferr.SystemError, err, "lz4 compress payload")
	}
	if err := w.Close(); err != nil {
		return nil, dferr.Wrap(dferr.SystemError, err, "lz4 flush")
	}
	return buf.Bytes(), nil
}

// DecompressPayload is the inverse of CompressPayload.
func DecompressPayload(payload []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(payload))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, dferr.Wrap(dferr.ConsistencyViolation, err, "lz4 decompress payload")
	}
	return out, nil
}
