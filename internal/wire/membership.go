//go:generate msgp

package wire

// NodeStatus is the NODE_STATUS payload body (spec's CLUSTER_INFO/
// NODE_STATUS message family): one physical node's self-reported health,
// msgp-encoded for a compact, allocation-light membership gossip format
// (the teacher/pack's choice for wire-adjacent structured payloads
// outside the fixed block-ops formats).
type NodeStatus struct {
	NodeID       string `msg:"node_id"`
	Addr         string `msg:"addr"`
	FreeBlocks   int64  `msg:"free_blocks"`
	TotalBlocks  int64  `msg:"total_blocks"`
	ReplicaQueue int64  `msg:"replica_queue"`
}

// ClusterInfo is the CLUSTER_INFO payload body: every known node's most
// recently reported status.
type ClusterInfo struct {
	Nodes []NodeStatus `msg:"nodes"`
}
