package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "node.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"node_id": "node-1",
		"data_dir": "/var/lib/distfs",
		"cluster_secret": "s3cr3t",
		"block_size_bytes": 4096,
		"total_blocks": 1024
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReplicaCount != 3 {
		t.Errorf("replica_count default = %d, want 3", cfg.ReplicaCount)
	}
	if cfg.ListenOn != ":7100" {
		t.Errorf("listen_on default = %q, want :7100", cfg.ListenOn)
	}
}

func TestLoadRejectsMissingNodeID(t *testing.T) {
	path := writeConfig(t, `{"data_dir": "/tmp", "cluster_secret": "s", "block_size_bytes": 1, "total_blocks": 1}`)
	if _, err := Load(path); err == nil {
		t.Error("expected missing node_id to fail validation")
	}
}

func TestTimeoutOverrideInSeconds(t *testing.T) {
	path := writeConfig(t, `{
		"node_id": "node-1",
		"data_dir": "/tmp",
		"cluster_secret": "s",
		"block_size_bytes": 4096,
		"total_blocks": 1024,
		"read_timeout_seconds": 30
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ReadTimeout.Duration().Seconds() != 30 {
		t.Errorf("read_timeout = %v, want 30s", cfg.ReadTimeout.Duration())
	}
}
