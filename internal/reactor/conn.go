// Package reactor implements the connection server (spec §4.2): an
// acceptor loop handing accepted sockets to a fixed pool of worker
// goroutines, each multiplexing many connections' framed reads and
// writes.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package reactor

import (
	"net"
	"sync"
	"time"

	"github.com/distfs/distfs/internal/dferr"
	"github.com/distfs/distfs/internal/nlog"
	"github.com/distfs/distfs/internal/wire"
)

// State is the connection lifecycle (spec §4.2).
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateAuthenticated
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

const (
	initialReadBuf = 4096
	// MaxMessageSize bounds the geometric buffer growth (spec §4.2:
	// "bounded by max_message_size + header_size").
	MaxMessageSize = wire.MaxPayload
)

// Conn wraps one accepted socket. Reads happen on the owning worker's
// goroutine; writes are serialized by writeMu so handlers on other
// goroutines (the dispatcher, the replication engine) can reply safely.
type Conn struct {
	id       string
	nc       net.Conn
	mu       sync.Mutex
	state    State
	readBuf  []byte
	writeMu  sync.Mutex
	peerNode string // set once JOIN_CLUSTER identifies the remote node

	idleTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func newConn(id string, nc net.Conn, idle, read, write time.Duration) *Conn {
	return &Conn{
		id:           id,
		nc:           nc,
		state:        StateConnecting,
		readBuf:      make([]byte, initialReadBuf),
		idleTimeout:  idle,
		readTimeout:  read,
		writeTimeout: write,
	}
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// MarkAuthenticated transitions CONNECTED -> AUTHENTICATED after a
// successful JOIN_CLUSTER handshake (SPEC_FULL.md's JWT supplement).
func (c *Conn) MarkAuthenticated(peerNode string) {
	c.mu.Lock()
	c.state = StateAuthenticated
	c.peerNode = peerNode
	c.mu.Unlock()
}

func (c *Conn) PeerNode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerNode
}

// growBuf doubles the read buffer (spec §4.2: "geometric growth"),
// capped at MaxMessageSize+HeaderSize.
func (c *Conn) growBuf(need int) {
	cap := wire.HeaderSize + MaxMessageSize
	newLen := len(c.readBuf) * 2
	if newLen < need {
		newLen = need
	}
	if newLen > cap {
		newLen = cap
	}
	grown := make([]byte, newLen)
	copy(grown, c.readBuf)
	c.readBuf = grown
}

// readFrame blocks for exactly one wire.Message, applying the configured
// read/idle timeout and growing the scratch buffer as needed.
func (c *Conn) readFrame() (*wire.Message, error) {
	hdr := make([]byte, wire.HeaderSize)
	// waiting for the next header is idle time; the payload uses the read timeout
	wait := c.readTimeout
	if c.idleTimeout > 0 {
		wait = c.idleTimeout
	}
	if wait > 0 {
		c.nc.SetReadDeadline(time.Now().Add(wait))
	}
	if _, err := readFull(c.nc, hdr); err != nil {
		return nil, err
	}
	h, err := wire.DecodeHeader(hdr)
	if err != nil {
		return nil, err
	}
	total := int(wire.HeaderSize) + int(h.Length)
	if total > wire.HeaderSize+MaxMessageSize {
		return nil, dferr.New(dferr.InvalidParam, "frame of %d bytes exceeds max message size", total)
	}
	if len(c.readBuf) < total {
		c.growBuf(total)
	}
	buf := c.readBuf[:total]
	copy(buf, hdr)
	if h.Length > 0 {
		if c.readTimeout > 0 {
			c.nc.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		if _, err := readFull(c.nc, buf[wire.HeaderSize:]); err != nil {
			return nil, err
		}
	}
	return wire.Decode(buf)
}

// WriteFrame serializes the encoded bytes under writeMu so concurrent
// repliers (handlers, diskio completion callbacks, replication callbacks)
// never interleave frames. Safe to call from any goroutine, not just the
// worker goroutine that read the request.
func (c *Conn) WriteFrame(encoded []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := c.nc.Write(encoded)
	return err
}

func (c *Conn) close() {
	c.setState(StateClosed)
	if err := c.nc.Close(); err != nil {
		nlog.Errorf("reactor: closing conn %s: %v", c.id, err)
	}
}

func readFull(nc net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := nc.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
