package replication

// Transport is the replication engine's view of the wire protocol (spec
// §4.7's "execute-task protocol"): open a connection, READ_BLOCK from the
// source, WRITE_BLOCK to each target. The real implementation dials a TCP
// connection and speaks internal/wire; tests substitute a fake.
type Transport interface {
	ReadBlock(nodeAddr string, blockID uint64) ([]byte, error)
	WriteBlock(nodeAddr string, blockID uint64, data []byte) error
}
