package wire

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/distfs/distfs/internal/dferr"
	"github.com/distfs/distfs/internal/ratomic"
)

// byte order for the on-wire header; any consistent choice works per spec
// §4.1 ("implementations MAY choose a canonical endianness"), we pick
// little-endian throughout, matching the host order of every platform the
// node actually ships on.
var order = binary.LittleEndian

// seq is the one process-global the spec allows (§9): a monotonically
// increasing, process-wide sequence number stamped on every outbound
// message.
var seq = ratomic.NewSeqCounter()

// NextSequence returns the next monotonically increasing sequence number.
func NextSequence() uint32 { return seq.Add(1) }

// headerChecksum computes "XOR of header words (excluding checksum) XOR
// CRC32(payload)" per spec §3/§4.1.
func headerChecksum(h *Header, payload []byte) uint32 {
	var x uint32
	x ^= h.Magic
	x ^= uint32(h.Version)<<16 | uint32(h.Type)
	x ^= h.Flags
	x ^= h.Length
	x ^= h.Sequence
	x ^= crc32.ChecksumIEEE(payload)
	return x
}

// Encode serializes a message (header + payload) onto the wire. Every call
// stamps a fresh sequence number from NextSequence; there is no way to
// reuse an earlier message's number.
func Encode(typ Type, flags uint32, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, dferr.New(dferr.InvalidParam, "payload %d exceeds max %d", len(payload), MaxPayload)
	}
	h := Header{
		Magic:    Magic,
		Version:  ProtocolVersion,
		Type:     typ,
		Flags:    flags,
		Length:   uint32(len(payload)),
		Sequence: NextSequence(),
	}
	h.Checksum = headerChecksum(&h, payload)

	buf := make([]byte, HeaderSize+len(payload))
	putHeader(buf, &h)
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

func putHeader(buf []byte, h *Header) {
	order.PutUint32(buf[0:4], h.Magic)
	order.PutUint16(buf[4:6], h.Version)
	order.PutUint16(buf[6:8], uint16(h.Type))
	order.PutUint32(buf[8:12], h.Flags)
	order.PutUint32(buf[12:16], h.Length)
	order.PutUint32(buf[16:20], h.Sequence)
	order.PutUint32(buf[20:24], h.Checksum)
}

// DecodeHeader parses the fixed 24-byte header out of buf[:24].
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, dferr.New(dferr.InvalidParam, "short header: %d bytes", len(buf))
	}
	h := Header{
		Magic:    order.Uint32(buf[0:4]),
		Version:  order.Uint16(buf[4:6]),
		Type:     Type(order.Uint16(buf[6:8])),
		Flags:    order.Uint32(buf[8:12]),
		Length:   order.Uint32(buf[12:16]),
		Sequence: order.Uint32(buf[16:20]),
		Checksum: order.Uint32(buf[20:24]),
	}
	if h.Magic != Magic {
		return h, dferr.New(dferr.InvalidParam, "bad magic 0x%x", h.Magic)
	}
	if h.Version != ProtocolVersion {
		return h, dferr.New(dferr.InvalidParam, "bad version %d", h.Version)
	}
	if h.Length > MaxPayload {
		return h, dferr.New(dferr.InvalidParam, "payload length %d exceeds max", h.Length)
	}
	return h, nil
}

// VerifyChecksum validates a fully-received message's checksum. A message
// whose computed and stored checksums are both zero is accepted like any
// other match; no warning is logged for it.
func VerifyChecksum(h *Header, payload []byte) bool {
	return headerChecksum(h, payload) == h.Checksum
}

// Decode fully parses a complete frame (header + payload already
// reassembled by the reactor) and validates it end to end.
func Decode(buf []byte) (*Message, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	if uint32(len(buf)) < HeaderSize+h.Length {
		return nil, dferr.New(dferr.InvalidParam, "short frame: need %d, have %d", HeaderSize+h.Length, len(buf))
	}
	payload := buf[HeaderSize : HeaderSize+h.Length]
	if !VerifyChecksum(&h, payload) {
		return nil, dferr.New(dferr.InvalidParam, "checksum mismatch")
	}
	// copy payload out so the caller may recycle/compact the read buffer
	out := make([]byte, len(payload))
	copy(out, payload)
	return &Message{Header: h, Payload: out}, nil
}
