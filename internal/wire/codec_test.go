package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("hello")
	buf, err := Encode(TypeWriteBlock, FlagReliable, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Header.Type != TypeWriteBlock {
		t.Errorf("type = %v, want %v", msg.Header.Type, TypeWriteBlock)
	}
	if msg.Header.Flags != FlagReliable {
		t.Errorf("flags = %v, want %v", msg.Header.Flags, FlagReliable)
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Errorf("payload = %q, want %q", msg.Payload, payload)
	}
}

func TestDecodeBadMagic(t *testing.T) {
	buf, _ := Encode(TypePing, 0, nil)
	buf[0] ^= 0xFF
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected error for corrupted magic")
	}
}

func TestDecodeBadChecksum(t *testing.T) {
	buf, _ := Encode(TypeWriteBlock, 0, []byte("payload"))
	buf[len(buf)-1] ^= 0xFF // flip a payload byte, checksum no longer matches
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestDecodeOversizedPayloadLength(t *testing.T) {
	buf, _ := Encode(TypePing, 0, nil)
	// forge an oversized length field directly in the header
	order.PutUint32(buf[12:16], MaxPayload+1)
	if _, err := DecodeHeader(buf); err == nil {
		t.Fatal("expected error for oversized payload length")
	}
}

func TestSequenceMonotonic(t *testing.T) {
	a := NextSequence()
	b := NextSequence()
	if b <= a {
		t.Errorf("sequence not monotonic: %d then %d", a, b)
	}
}

func TestWriteBlockPayloadRoundTrip(t *testing.T) {
	data := []byte("some block bytes")
	buf, err := EncodeWriteBlock(WriteBlockPayload{BlockID: 7, Size: uint64(len(data)), Data: data})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p, err := DecodeWriteBlock(msg.Payload)
	if err != nil {
		t.Fatalf("decode write block: %v", err)
	}
	if p.BlockID != 7 || !bytes.Equal(p.Data, data) {
		t.Errorf("got %+v", p)
	}
}
