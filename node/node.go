// Package node wires the storage-plane components into one running
// process (spec §9: "components are wired via explicit handles passed at
// construction, not package-level globals" -- the one exception being the
// wire package's process-global sequence counter). This is the root
// object cmd/distfsnode constructs and shuts down.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package node

import (
	"net"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/distfs/distfs/config"
	"github.com/distfs/distfs/internal/admin"
	"github.com/distfs/distfs/internal/bitmap"
	"github.com/distfs/distfs/internal/blockstore"
	"github.com/distfs/distfs/internal/dferr"
	"github.com/distfs/distfs/internal/diskio"
	"github.com/distfs/distfs/internal/dispatch"
	"github.com/distfs/distfs/internal/nlog"
	"github.com/distfs/distfs/internal/reactor"
	"github.com/distfs/distfs/internal/replication"
	"github.com/distfs/distfs/internal/ring"
	"github.com/distfs/distfs/internal/wire"
)

// Node is one running storage node: the sum of every spec §4 module,
// constructed once and torn down together.
type Node struct {
	cfg *config.Node

	allocator *bitmap.Allocator
	disk      *diskio.Engine
	store     *blockstore.Store
	placement *ring.Ring
	auth      *reactor.Authenticator
	repl      *replication.Engine
	server    *reactor.Server
	adminSrv  *admin.Server
	metrics   *admin.Metrics
	registry  *prometheus.Registry

	gaugeStop  chan struct{}
	lastDone   int64
	lastFailed int64
}

// membershipAdapter satisfies dispatch.ClusterMembership over the
// placement ring's AddNode/RemoveNode, which don't themselves return
// errors (ring membership changes can't fail).
type membershipAdapter struct{ r *ring.Ring }

func (m membershipAdapter) Join(nodeID string) error {
	m.r.AddNode(nodeID, nil)
	return nil
}

func (m membershipAdapter) Leave(nodeID string) error {
	m.r.RemoveNode(nodeID)
	return nil
}

// peerTransport implements replication.Transport by dialing a TCP
// connection and speaking internal/wire directly (spec §4.7's
// execute-task protocol), one dial per call; connections are not pooled.
type peerTransport struct {
	auth *reactor.Authenticator
	self string
}

func (p *peerTransport) dial(addr string) (net.Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, dferr.Wrap(dferr.NetworkFailure, err, "dial peer "+addr)
	}
	token, err := p.auth.IssueToken(p.self, tokenTTL)
	if err != nil {
		nc.Close()
		return nil, dferr.Wrap(dferr.PermissionDenied, err, "issue join token")
	}
	joinFrame, err := wire.Encode(wire.TypeJoinCluster, 0, []byte(token))
	if err != nil {
		nc.Close()
		return nil, err
	}
	if _, err := nc.Write(joinFrame); err != nil {
		nc.Close()
		return nil, dferr.Wrap(dferr.NetworkFailure, err, "send join_cluster")
	}
	if err := readReply(nc, wire.TypeSuccess); err != nil {
		nc.Close()
		return nil, err
	}
	return nc, nil
}

func (p *peerTransport) ReadBlock(nodeAddr string, blockID uint64) ([]byte, error) {
	nc, err := p.dial(nodeAddr)
	if err != nil {
		return nil, err
	}
	defer nc.Close()

	frame, err := wire.EncodeReadBlock(blockID)
	if err != nil {
		return nil, err
	}
	if _, err := nc.Write(frame); err != nil {
		return nil, dferr.Wrap(dferr.NetworkFailure, err, "send read_block")
	}
	return readDataReply(nc)
}

func (p *peerTransport) WriteBlock(nodeAddr string, blockID uint64, data []byte) error {
	nc, err := p.dial(nodeAddr)
	if err != nil {
		return err
	}
	defer nc.Close()

	frame, err := wire.EncodeWriteBlock(wire.WriteBlockPayload{BlockID: blockID, Size: uint64(len(data)), Data: data})
	if err != nil {
		return err
	}
	if _, err := nc.Write(frame); err != nil {
		return dferr.Wrap(dferr.NetworkFailure, err, "send write_block")
	}
	return readReply(nc, wire.TypeSuccess)
}

func readReply(nc net.Conn, want wire.Type) error {
	hdr := make([]byte, wire.HeaderSize)
	if _, err := readFull(nc, hdr); err != nil {
		return dferr.Wrap(dferr.NetworkFailure, err, "read reply header")
	}
	h, err := wire.DecodeHeader(hdr)
	if err != nil {
		return err
	}
	payload := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := readFull(nc, payload); err != nil {
			return dferr.Wrap(dferr.NetworkFailure, err, "read reply payload")
		}
	}
	if h.Type == wire.TypeError {
		code, _ := wire.DecodeErrorPayload(payload)
		return dferr.New(code, "peer returned error")
	}
	if h.Type != want {
		return dferr.New(dferr.InvalidParam, "unexpected reply type 0x%x", h.Type)
	}
	return nil
}

func readDataReply(nc net.Conn) ([]byte, error) {
	hdr := make([]byte, wire.HeaderSize)
	if _, err := readFull(nc, hdr); err != nil {
		return nil, dferr.Wrap(dferr.NetworkFailure, err, "read reply header")
	}
	h, err := wire.DecodeHeader(hdr)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := readFull(nc, payload); err != nil {
			return nil, dferr.Wrap(dferr.NetworkFailure, err, "read reply payload")
		}
	}
	if h.Type == wire.TypeError {
		code, _ := wire.DecodeErrorPayload(payload)
		return nil, dferr.New(code, "peer returned error")
	}
	if h.Type != wire.TypeData {
		return nil, dferr.New(dferr.InvalidParam, "unexpected reply type 0x%x", h.Type)
	}
	return payload, nil
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

const tokenTTL = 60 * time.Second

// New constructs every component from cfg but does not start serving.
func New(cfg *config.Node) (*Node, error) {
	allocator, err := bitmap.Open(bitmap.Options{
		DataDir:     cfg.DataDir,
		BlockSize:   cfg.BlockSizeBytes,
		TotalBlocks: cfg.TotalBlocks,
	})
	if err != nil {
		return nil, err
	}

	disk := diskio.New(diskio.Options{Workers: cfg.DiskIOWorkers})

	store, err := blockstore.New(cfg.DataDir, disk)
	if err != nil {
		disk.Stop()
		return nil, err
	}

	placement := ring.New(cfg.VirtualNodes)
	auth := reactor.NewAuthenticator([]byte(cfg.ClusterSecret))

	transport := &peerTransport{auth: auth, self: cfg.NodeID}
	repl, err := replication.New(transport, replication.Options{
		Workers:    cfg.ReplicationWorkers,
		MaxRetries: cfg.ReplicationRetries,
		DBPath:     filepath.Join(cfg.DataDir, "replication.db"),
	})
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := admin.NewMetrics(registry)

	member := membershipAdapter{r: placement}
	disp := dispatch.New(store, auth, member, metrics)

	server := reactor.New(reactor.Options{
		Addr:           cfg.ListenOn,
		Workers:        cfg.ReactorWorkers,
		MaxConnections: cfg.MaxConnections,
		IdleTimeout:    cfg.IdleTimeout.Duration(),
		ReadTimeout:    cfg.ReadTimeout.Duration(),
		WriteTimeout:   cfg.WriteTimeout.Duration(),
	}, disp.Handle)

	adminSrv := admin.New(cfg.AdminOn, registry, func() error { return nil })

	return &Node{
		cfg:       cfg,
		allocator: allocator,
		disk:      disk,
		store:     store,
		placement: placement,
		auth:      auth,
		repl:      repl,
		server:    server,
		adminSrv:  adminSrv,
		metrics:   metrics,
		registry:  registry,
		gaugeStop: make(chan struct{}),
	}, nil
}

// reportGauges periodically samples every component's live gauge (active
// connections, replication queue depth, disk I/O queue depth) into the
// Prometheus surface -- these are point-in-time samples, not events, so a
// poll loop is simpler and cheaper than threading a callback through each
// component (spec §6 admin surface).
func (n *Node) reportGauges(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.gaugeStop:
			return
		case <-ticker.C:
			n.metrics.ActiveConnections.Set(float64(n.server.ActiveConnections()))
			n.metrics.DiskIOPending.Set(float64(n.disk.PendingCount()))

			done, failed, depth := n.repl.Stats()
			n.metrics.ReplicationQueue.Set(float64(depth))
			if delta := done - n.lastDone; delta > 0 {
				n.metrics.ReplicationDone.Add(float64(delta))
				n.lastDone = done
			}
			if delta := failed - n.lastFailed; delta > 0 {
				n.metrics.ReplicationFailed.Add(float64(delta))
				n.lastFailed = failed
			}
		}
	}
}

// Serve starts the reactor and admin surfaces; it blocks until the reactor
// stops (normally via Shutdown from another goroutine).
func (n *Node) Serve() error {
	go func() {
		if err := n.adminSrv.ListenAndServe(); err != nil {
			nlog.Errorf("node %s: admin server: %v", n.cfg.NodeID, err)
		}
	}()
	go n.reportGauges(gaugeReportInterval)
	nlog.Infof("node %s: serving on %s (admin on %s)", n.cfg.NodeID, n.cfg.ListenOn, n.cfg.AdminOn)
	return n.server.Serve()
}

const gaugeReportInterval = 2 * time.Second

// Shutdown stops every component in dependency order: network surfaces
// first, then the background engines, then the on-disk allocator sync.
func (n *Node) Shutdown() error {
	close(n.gaugeStop)
	n.server.Stop()
	_ = n.adminSrv.Shutdown()
	n.repl.Stop()
	n.disk.Stop()
	return n.allocator.Sync()
}
