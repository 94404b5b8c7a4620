package wire

import "github.com/tinylib/msgp/msgp"

// Hand-written in the shape `msgp -file membership.go` would produce,
// since no code generation runs in this build. Field order here must
// match between MarshalMsg and UnmarshalMsg.

func (z NodeStatus) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 5)
	b = msgp.AppendString(b, "node_id")
	b = msgp.AppendString(b, z.NodeID)
	b = msgp.AppendString(b, "addr")
	b = msgp.AppendString(b, z.Addr)
	b = msgp.AppendString(b, "free_blocks")
	b = msgp.AppendInt64(b, z.FreeBlocks)
	b = msgp.AppendString(b, "total_blocks")
	b = msgp.AppendInt64(b, z.TotalBlocks)
	b = msgp.AppendString(b, "replica_queue")
	b = msgp.AppendInt64(b, z.ReplicaQueue)
	return b, nil
}

func (z *NodeStatus) UnmarshalMsg(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, err
	}
	for i := uint32(0); i < n; i++ {
		var key string
		key, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return b, err
		}
		switch key {
		case "node_id":
			z.NodeID, b, err = msgp.ReadStringBytes(b)
		case "addr":
			z.Addr, b, err = msgp.ReadStringBytes(b)
		case "free_blocks":
			z.FreeBlocks, b, err = msgp.ReadInt64Bytes(b)
		case "total_blocks":
			z.TotalBlocks, b, err = msgp.ReadInt64Bytes(b)
		case "replica_queue":
			z.ReplicaQueue, b, err = msgp.ReadInt64Bytes(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

func (z NodeStatus) Msgsize() int {
	return 1 + 8 + msgp.StringPrefixSize + len(z.NodeID) +
		5 + msgp.StringPrefixSize + len(z.Addr) +
		12 + msgp.Int64Size +
		13 + msgp.Int64Size +
		14 + msgp.Int64Size
}

func (z ClusterInfo) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 1)
	b = msgp.AppendString(b, "nodes")
	b = msgp.AppendArrayHeader(b, uint32(len(z.Nodes)))
	for _, n := range z.Nodes {
		var err error
		b, err = n.MarshalMsg(b)
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

func (z *ClusterInfo) UnmarshalMsg(b []byte) ([]byte, error) {
	mapN, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, err
	}
	for i := uint32(0); i < mapN; i++ {
		var key string
		key, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return b, err
		}
		switch key {
		case "nodes":
			var arrN uint32
			arrN, b, err = msgp.ReadArrayHeaderBytes(b)
			if err != nil {
				return b, err
			}
			z.Nodes = make([]NodeStatus, arrN)
			for j := uint32(0); j < arrN; j++ {
				b, err = z.Nodes[j].UnmarshalMsg(b)
				if err != nil {
					return b, err
				}
			}
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

func (z ClusterInfo) Msgsize() int {
	s := 1 + 6 + msgp.ArrayHeaderSize
	for _, n := range z.Nodes {
		s += n.Msgsize()
	}
	return s
}

// EncodeClusterInfo frames a ClusterInfo as a CLUSTER_INFO message.
func EncodeClusterInfo(info ClusterInfo) ([]byte, error) {
	payload, err := info.MarshalMsg(nil)
	if err != nil {
		return nil, err
	}
	return Encode(TypeClusterInfo, 0, payload)
}

// DecodeClusterInfo parses a CLUSTER_INFO message's payload.
func DecodeClusterInfo(payload []byte) (ClusterInfo, error) {
	var info ClusterInfo
	if _, err := info.UnmarshalMsg(payload); err != nil {
		return ClusterInfo{}, err
	}
	return info, nil
}
