package dispatch

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/distfs/distfs/internal/admin"
	"github.com/distfs/distfs/internal/blockstore"
	"github.com/distfs/distfs/internal/diskio"
	"github.com/distfs/distfs/internal/reactor"
	"github.com/distfs/distfs/internal/wire"
)

type fakeMembership struct {
	joined []string
	left   []string
}

func (f *fakeMembership) Join(nodeID string) error {
	f.joined = append(f.joined, nodeID)
	return nil
}

func (f *fakeMembership) Leave(nodeID string) error {
	f.left = append(f.left, nodeID)
	return nil
}

func tempStore(t *testing.T) *blockstore.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "distfs-dispatch-")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	disk := diskio.New(diskio.Options{Workers: 1})
	t.Cleanup(disk.Stop)

	store, err := blockstore.New(dir, disk)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func testMetrics(t *testing.T) *admin.Metrics {
	t.Helper()
	return admin.NewMetrics(prometheus.NewRegistry())
}

// pipedConn returns the server-side Conn under test plus the client-side
// net.Conn a test can read replies from -- Handle no longer returns its
// reply, so every assertion now reads it off this pipe.
func pipedConn() (*reactor.Conn, net.Conn) {
	client, server := net.Pipe()
	return reactor.NewTestConn(server, 0, time.Second, time.Second), client
}

func readReply(t *testing.T, client net.Conn) []byte {
	t.Helper()
	hdr := make([]byte, wire.HeaderSize)
	if _, err := readFull(client, hdr); err != nil {
		t.Fatalf("read reply header: %v", err)
	}
	h, err := wire.DecodeHeader(hdr)
	if err != nil {
		t.Fatalf("decode reply header: %v", err)
	}
	frame := make([]byte, int(wire.HeaderSize)+int(h.Length))
	copy(frame, hdr)
	if h.Length > 0 {
		if _, err := readFull(client, frame[wire.HeaderSize:]); err != nil {
			t.Fatalf("read reply payload: %v", err)
		}
	}
	return frame
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

func TestHandlePingWithoutAuth(t *testing.T) {
	d := New(tempStore(t), reactor.NewAuthenticator([]byte("s")), &fakeMembership{}, testMetrics(t))
	c, client := pipedConn()

	go d.Handle(c, &wire.Message{Header: wire.Header{Type: wire.TypePing}})
	reply := readReply(t, client)

	h, err := wire.DecodeHeader(reply[:wire.HeaderSize])
	if err != nil {
		t.Fatal(err)
	}
	if h.Type != wire.TypePong {
		t.Errorf("type = %v, want TypePong", h.Type)
	}
}

func TestWriteBlockRequiresAuthentication(t *testing.T) {
	d := New(tempStore(t), reactor.NewAuthenticator([]byte("s")), &fakeMembership{}, testMetrics(t))
	c, client := pipedConn()

	payload, _ := wire.EncodeWriteBlock(wire.WriteBlockPayload{BlockID: 1, Size: 1, Data: []byte("x")})
	msg, _ := wire.Decode(payload)

	go d.Handle(c, msg)
	reply := readReply(t, client)

	h, _ := wire.DecodeHeader(reply[:wire.HeaderSize])
	if h.Type != wire.TypeError {
		t.Errorf("type = %v, want TypeError (unauthenticated)", h.Type)
	}
}

func TestJoinClusterThenWriteReadRoundTrip(t *testing.T) {
	auth := reactor.NewAuthenticator([]byte("shared-secret"))
	member := &fakeMembership{}
	d := New(tempStore(t), auth, member, testMetrics(t))
	c, client := pipedConn()

	token, err := auth.IssueToken("node-9", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	joinEncoded, _ := wire.Encode(wire.TypeJoinCluster, 0, []byte(token))
	joinMsg, _ := wire.Decode(joinEncoded)

	go d.Handle(c, joinMsg)
	reply := readReply(t, client)
	h, _ := wire.DecodeHeader(reply[:wire.HeaderSize])
	if h.Type != wire.TypeSuccess {
		t.Fatalf("join_cluster type = %v, want TypeSuccess", h.Type)
	}
	if len(member.joined) != 1 || member.joined[0] != "node-9" {
		t.Errorf("membership.joined = %v, want [node-9]", member.joined)
	}

	writeEncoded, _ := wire.EncodeWriteBlock(wire.WriteBlockPayload{BlockID: 5, Size: 4, Data: []byte("data")})
	writeMsg, _ := wire.Decode(writeEncoded)
	go d.Handle(c, writeMsg)
	reply = readReply(t, client)
	h, _ = wire.DecodeHeader(reply[:wire.HeaderSize])
	if h.Type != wire.TypeSuccess {
		t.Fatalf("write_block type = %v, want TypeSuccess", h.Type)
	}

	readEncoded, _ := wire.EncodeReadBlock(5)
	readMsg, _ := wire.Decode(readEncoded)
	go d.Handle(c, readMsg)
	reply = readReply(t, client)
	h, _ = wire.DecodeHeader(reply[:wire.HeaderSize])
	if h.Type != wire.TypeData {
		t.Fatalf("read_block type = %v, want TypeData", h.Type)
	}
	if string(reply[wire.HeaderSize:]) != "data" {
		t.Errorf("read_block payload = %q, want %q", reply[wire.HeaderSize:], "data")
	}
}
