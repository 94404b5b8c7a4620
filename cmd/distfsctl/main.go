// Command distfsctl is a minimal debug client for exercising a running
// node's wire protocol directly (ping/read/write), adapted from the
// teacher's CLI front-end in spirit -- a thin argument parser over a
// handful of subcommands, no interactive shell. It sends no JOIN_CLUSTER
// handshake, so a node answers its write and read requests with an ERROR
// reply (PermissionDenied); only ping gets a normal reply.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/distfs/distfs/internal/wire"
)

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(2)
	}
	addr := os.Args[1]
	cmd := os.Args[2]

	nc, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, "distfsctl: dial:", err)
		os.Exit(1)
	}
	defer nc.Close()

	switch cmd {
	case "ping":
		err = doPing(nc)
	case "write":
		if len(os.Args) < 5 {
			usage()
			os.Exit(2)
		}
		err = doWrite(nc, os.Args[3], os.Args[4])
	case "read":
		if len(os.Args) < 4 {
			usage()
			os.Exit(2)
		}
		err = doRead(nc, os.Args[3])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "distfsctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: distfsctl <addr> ping|write <block_id> <data>|read <block_id>")
}

func doPing(nc net.Conn) error {
	frame, err := wire.EncodePing()
	if err != nil {
		return err
	}
	if _, err := nc.Write(frame); err != nil {
		return err
	}
	h, _, err := readReply(nc)
	if err != nil {
		return err
	}
	fmt.Println(h.Type)
	return nil
}

func doWrite(nc net.Conn, idStr, data string) error {
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return err
	}
	frame, err := wire.EncodeWriteBlock(wire.WriteBlockPayload{BlockID: id, Size: uint64(len(data)), Data: []byte(data)})
	if err != nil {
		return err
	}
	if _, err := nc.Write(frame); err != nil {
		return err
	}
	h, _, err := readReply(nc)
	if err != nil {
		return err
	}
	fmt.Println(h.Type)
	return nil
}

func doRead(nc net.Conn, idStr string) error {
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return err
	}
	frame, err := wire.EncodeReadBlock(id)
	if err != nil {
		return err
	}
	if _, err := nc.Write(frame); err != nil {
		return err
	}
	_, payload, err := readReply(nc)
	if err != nil {
		return err
	}
	fmt.Println(string(payload))
	return nil
}

func readReply(nc net.Conn) (wire.Header, []byte, error) {
	hdr := make([]byte, wire.HeaderSize)
	if _, err := readFull(nc, hdr); err != nil {
		return wire.Header{}, nil, err
	}
	h, err := wire.DecodeHeader(hdr)
	if err != nil {
		return wire.Header{}, nil, err
	}
	payload := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := readFull(nc, payload); err != nil {
			return h, nil, err
		}
	}
	return h, payload, nil
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
