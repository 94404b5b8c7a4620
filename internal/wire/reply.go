package wire

import (
	"encoding/binary"

	"github.com/distfs/distfs/internal/dferr"
)

// EncodeError builds the 4-byte numeric-code payload every user-visible
// failure carries (spec §7).
func EncodeError(code dferr.Code) ([]byte, error) {
	payload := make([]byte, 4)
	order.PutUint32(payload, uint32(code))
	return Encode(TypeError, 0, payload)
}

// DecodeErrorPayload is the client-side inverse of EncodeError.
func DecodeErrorPayload(payload []byte) (dferr.Code, error) {
	if len(payload) != 4 {
		return 0, dferr.New(dferr.InvalidParam, "error payload must be 4 bytes, got %d", len(payload))
	}
	return dferr.Code(order.Uint32(payload)), nil
}

// EncodeSuccess builds an empty-payload SUCCESS reply.
func EncodeSuccess() ([]byte, error) { return Encode(TypeSuccess, 0, nil) }

// EncodeData frames an arbitrary payload as a DATA response (used for
// READ_BLOCK replies; membership info is framed by EncodeClusterInfo).
func EncodeData(payload []byte) ([]byte, error) { return Encode(TypeData, 0, payload) }

// EncodePing / EncodePong are the liveness family (§4.1), empty payloads.
func EncodePing() ([]byte, error) { return Encode(TypePing, 0, nil) }
func EncodePong() ([]byte, error) { return Encode(TypePong, 0, nil) }

// WriteBlockPayload is the block-ops wire format for WRITE_BLOCK:
// {u64 block_id, u64 size, bytes data} (spec §4.7).
type WriteBlockPayload struct {
	BlockID uint64
	Size    uint64
	Data    []byte
}

func EncodeWriteBlock(p WriteBlockPayload) ([]byte, error) {
	buf := make([]byte, 16+len(p.Data))
	binary.LittleEndian.PutUint64(buf[0:8], p.BlockID)
	binary.LittleEndian.PutUint64(buf[8:16], p.Size)
	copy(buf[16:], p.Data)
	return Encode(TypeWriteBlock, 0, buf)
}

func DecodeWriteBlock(payload []byte) (WriteBlockPayload, error) {
	if len(payload) < 16 {
		return WriteBlockPayload{}, dferr.New(dferr.InvalidParam, "short WRITE_BLOCK payload: %d", len(payload))
	}
	p := WriteBlockPayload{
		BlockID: binary.LittleEndian.Uint64(payload[0:8]),
		Size:    binary.LittleEndian.Uint64(payload[8:16]),
	}
	p.Data = payload[16:]
	if uint64(len(p.Data)) != p.Size {
		return p, dferr.New(dferr.InvalidParam, "declared size %d != payload %d", p.Size, len(p.Data))
	}
	return p, nil
}

// EncodeReadBlock / DecodeBlockID: READ_BLOCK's payload is just the
// 8-byte block id.
func EncodeReadBlock(blockID uint64) ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, blockID)
	return Encode(TypeReadBlock, 0, buf)
}

func DecodeBlockID(payload []byte) (uint64, error) {
	if len(payload) != 8 {
		return 0, dferr.New(dferr.InvalidParam, "block id payload must be 8 bytes, got %d", len(payload))
	}
	return binary.LittleEndian.Uint64(payload), nil
}

func EncodeDeleteBlock(blockID uint64) ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, blockID)
	return Encode(TypeDeleteBlock, 0, buf)
}
