// Package wire implements the framed wire protocol shared by every peer in
// the cluster (spec §4.1, §6): a fixed 24-byte header followed by a
// payload of declared length. The header layout and checksum formula are
// spec-mandated for wire compatibility, so the codec is hand-rolled rather
// than delegated to a generic serialization library — see DESIGN.md.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package wire

const (
	Magic           uint32 = 0x44495354 // "DIST"
	ProtocolVersion uint16 = 1

	HeaderSize = 24
	MaxPayload = 16 << 20 // 16 MiB
)

// Flag bits (spec §6).
const (
	FlagCompressed uint32 = 0x01
	FlagEncrypted  uint32 = 0x02
	FlagUrgent     uint32 = 0x04
	FlagReliable   uint32 = 0x08
)

// Type is the 16-bit message-type space (spec §4.1, §6). The storage-plane
// core implements membership, replication, block-op, response, and
// liveness families; client-op numbers are reserved so a metadata node
// sharing this wire format stays binary-compatible.
type Type uint16

const (
	// client ops 0x0001-0x000B (reserved, not handled by the storage plane)
	TypeClientOpsLo Type = 0x0001
	TypeClientOpsHi Type = 0x000B

	// membership 0x0101-0x0105
	TypeJoinCluster  Type = 0x0101
	TypeLeaveCluster Type = 0x0102
	TypeHeartbeat    Type = 0x0103
	TypeNodeStatus   Type = 0x0104
	TypeClusterInfo  Type = 0x0105

	// replication 0x0201-0x0204
	TypeReplicate    Type = 0x0201
	TypeSyncMetadata Type = 0x0202
	TypeRepair       Type = 0x0203
	TypeMigrate      Type = 0x0204

	// block ops 0x0301-0x0303
	TypeReadBlock   Type = 0x0301
	TypeWriteBlock  Type = 0x0302
	TypeDeleteBlock Type = 0x0303

	// responses 0x8000-0x8003
	TypeSuccess  Type = 0x8000
	TypeError    Type = 0x8001
	TypeData     Type = 0x8002
	TypeMetadata Type = 0x8003

	// liveness 0xF001-0xF002
	TypePing Type = 0xF001
	TypePong Type = 0xF002
)

// Header is the fixed 24-byte frame header (spec §6):
// magic 4, version 2, type 2, flags 4, length 4, sequence 4, checksum 4.
type Header struct {
	Magic    uint32
	Version  uint16
	Type     Type
	Flags    uint32
	Length   uint32
	Sequence uint32
	Checksum uint32
}

// Message is a decoded frame: header plus payload bytes.
type Message struct {
	Header  Header
	Payload []byte
}

func (m *Message) HasFlag(f uint32) bool { return m.Header.Flags&f != 0 }
