package diskio

import "github.com/lufia/iostat"

// HostDiskStats is an ambient snapshot of the underlying block device's
// I/O counters (admin surface §6), independent of this engine's own
// request queue -- useful for telling "our queue is deep because the
// disk is slow" apart from "our queue is deep because we're saturating a
// fast disk".
type HostDiskStats struct {
	Name         string
	ReadCount    uint64
	WriteCount   uint64
	ReadSectors  uint64
	WriteSectors uint64
}

// ReadHostDiskStats reads the host's per-device I/O counters. Returns an
// empty slice (never an error the caller must branch on) on platforms
// iostat doesn't support, since this is purely an ambient metric.
func ReadHostDiskStats() []HostDiskStats {
	drives, err := iostat.ReadDriveStats()
	if err != nil {
		return nil
	}
	out := make([]HostDiskStats, 0, len(drives))
	for _, d := range drives {
		out = append(out, HostDiskStats{
			Name:         d.Name,
			ReadCount:    d.ReadCount,
			WriteCount:   d.WriteCount,
			ReadSectors:  d.ReadSectors,
			WriteSectors: d.WriteSectors,
		})
	}
	return out
}
