package bitmap

import (
	"encoding/binary"
	"io"
	"os"
	"sync"
	"time"

	"github.com/distfs/distfs/internal/dferr"
)

// Status is the block lifecycle state (spec §3).
type Status uint8

const (
	Free Status = iota
	Allocated
	Dirty
)

// Metadata is one fixed-size record per block id (spec §3).
type Metadata struct {
	ID       uint64
	Size     uint32
	Checksum uint32
	Created  time.Time
	Modified time.Time
	RefCount uint32
	Status   Status
}

const metadataRecordSize = 8 + 4 + 4 + 8 + 8 + 4 + 1 // id, size, checksum, created, modified, refcount, status

const (
	onDiskMagic   uint64 = 0x44495354424C4B53
	onDiskVersion uint64 = 1
)

// Allocator owns the bitmap plus the parallel metadata array, guarded per
// spec §4.3/§5: the bitmap by its own mutex, the metadata array by a
// reader-writer lock so metadata reads do not block each other (allocation
// still takes the write lock briefly to initialize a record).
type Allocator struct {
	bmMu sync.Mutex
	bm   *Bitmap

	mdMu sync.RWMutex
	md   []Metadata

	blockSize   uint32
	totalBlocks int
	freeBlocks  int // protected by bmMu

	path string
}

// Options configures a fresh or reopened allocator (spec §6 operator surface).
type Options struct {
	DataDir     string
	BlockSize   uint32
	TotalBlocks int
}

const metaFileName = "blockmeta.img"

// Open loads the on-disk image if present and matches the expected
// parameters; otherwise it initializes a fresh allocator. A parameter
// mismatch against an existing image is an initialization failure (spec
// §4.3: "node refuses to start").
func Open(opts Options) (*Allocator, error) {
	path := opts.DataDir + string(os.PathSeparator) + metaFileName
	a := &Allocator{
		blockSize:   opts.BlockSize,
		totalBlocks: opts.TotalBlocks,
		freeBlocks:  opts.TotalBlocks,
		bm:          New(opts.TotalBlocks),
		md:          make([]Metadata, opts.TotalBlocks),
		path:        path,
	}
	for i := range a.md {
		a.md[i].ID = uint64(i)
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return a, nil
	}
	if err != nil {
		return nil, dferr.Wrap(dferr.FileOpenFailed, err, "open block metadata image")
	}
	defer f.Close()

	if err := a.loadFrom(f, opts); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Allocator) loadFrom(f *os.File, opts Options) error {
	hdr := make([]byte, 40)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return dferr.Wrap(dferr.SystemError, err, "read block metadata header")
	}
	magic := binary.LittleEndian.Uint64(hdr[0:8])
	version := binary.LittleEndian.Uint64(hdr[8:16])
	blockSize := binary.LittleEndian.Uint64(hdr[16:24])
	totalBlocks := binary.LittleEndian.Uint64(hdr[24:32])
	freeBlocks := binary.LittleEndian.Uint64(hdr[32:40])

	if magic != onDiskMagic {
		return dferr.New(dferr.AlreadyInitialized, "bad metadata magic 0x%x", magic)
	}
	if version != onDiskVersion {
		return dferr.New(dferr.AlreadyInitialized, "unsupported metadata version %d", version)
	}
	if blockSize != uint64(opts.BlockSize) || totalBlocks != uint64(opts.TotalBlocks) {
		return dferr.New(dferr.AlreadyInitialized,
			"on-disk params (block_size=%d total_blocks=%d) mismatch configured (%d, %d)",
			blockSize, totalBlocks, opts.BlockSize, opts.TotalBlocks)
	}

	nwords := (opts.TotalBlocks + 63) / 64
	wordsBuf := make([]byte, nwords*8)
	if _, err := io.ReadFull(f, wordsBuf); err != nil {
		return dferr.Wrap(dferr.SystemError, err, "read bitmap words")
	}
	words := make([]uint64, nwords)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(wordsBuf[i*8 : i*8+8])
	}

	md := make([]Metadata, opts.TotalBlocks)
	rec := make([]byte, metadataRecordSize)
	for i := range md {
		if _, err := io.ReadFull(f, rec); err != nil {
			return dferr.Wrap(dferr.SystemError, err, "read metadata record")
		}
		md[i] = decodeMetadata(rec)
	}

	a.bm = FromWords(words, opts.TotalBlocks)
	a.md = md
	a.freeBlocks = int(freeBlocks)
	return nil
}

func decodeMetadata(rec []byte) Metadata {
	return Metadata{
		ID:       binary.LittleEndian.Uint64(rec[0:8]),
		Size:     binary.LittleEndian.Uint32(rec[8:12]),
		Checksum: binary.LittleEndian.Uint32(rec[12:16]),
		Created:  time.Unix(0, int64(binary.LittleEndian.Uint64(rec[16:24]))),
		Modified: time.Unix(0, int64(binary.LittleEndian.Uint64(rec[24:32]))),
		RefCount: binary.LittleEndian.Uint32(rec[32:36]),
		Status:   Status(rec[36]),
	}
}

func encodeMetadata(m Metadata, rec []byte) {
	binary.LittleEndian.PutUint64(rec[0:8], m.ID)
	binary.LittleEndian.PutUint32(rec[8:12], m.Size)
	binary.LittleEndian.PutUint32(rec[12:16], m.Checksum)
	binary.LittleEndian.PutUint64(rec[16:24], uint64(m.Created.UnixNano()))
	binary.LittleEndian.PutUint64(rec[24:32], uint64(m.Modified.UnixNano()))
	binary.LittleEndian.PutUint32(rec[32:36], m.RefCount)
	rec[36] = byte(m.Status)
}

// Allocate returns the smallest free id, or StorageFull.
func (a *Allocator) Allocate() (uint64, error) {
	a.bmMu.Lock()
	defer a.bmMu.Unlock()
	return a.allocateLocked()
}

func (a *Allocator) allocateLocked() (uint64, error) {
	id := a.bm.FirstFree()
	if id < 0 {
		return 0, dferr.New(dferr.StorageFull, "no free blocks")
	}
	a.bm.Set(id)
	a.freeBlocks--

	now := time.Now()
	a.mdMu.Lock()
	a.md[id] = Metadata{ID: uint64(id), Created: now, Modified: now, RefCount: 1, Status: Allocated}
	a.mdMu.Unlock()
	return uint64(id), nil
}

// AllocateBatch returns n fresh ids, rolling back atomically on
// StorageFull partway through (spec §4.3). Per §9, batch ids need not be
// the lowest n — the scan resumes from the last discovery point.
func (a *Allocator) AllocateBatch(n int) ([]uint64, error) {
	a.bmMu.Lock()
	defer a.bmMu.Unlock()

	ids := make([]uint64, 0, n)
	hint := 0
	for len(ids) < n {
		id := a.bm.FirstFreeFrom(hint)
		if id < 0 {
			// roll back everything allocated so far in this batch
			for _, rid := range ids {
				a.bm.Clear(int(rid))
				a.freeBlocks++
			}
			return nil, dferr.New(dferr.StorageFull, "cannot satisfy batch of %d, got %d", n, len(ids))
		}
		a.bm.Set(id)
		a.freeBlocks--
		hint = id/64 + 1
		ids = append(ids, uint64(id))
	}

	now := time.Now()
	a.mdMu.Lock()
	for _, id := range ids {
		a.md[id] = Metadata{ID: id, Created: now, Modified: now, RefCount: 1, Status: Allocated}
	}
	a.mdMu.Unlock()
	return ids, nil
}

// Free clears the bit and zeroes the metadata record (preserving id).
// Double-free is reported as InvalidParam (spec §8, testable property 7).
func (a *Allocator) Free(id uint64) error {
	if int(id) >= a.totalBlocks {
		return dferr.New(dferr.InvalidParam, "block id %d out of range", id)
	}
	a.bmMu.Lock()
	defer a.bmMu.Unlock()

	if !a.bm.IsSet(int(id)) {
		return dferr.New(dferr.InvalidParam, "block %d is not allocated", id)
	}
	a.bm.Clear(int(id))
	a.freeBlocks++

	a.mdMu.Lock()
	a.md[id] = Metadata{ID: id, Status: Free}
	a.mdMu.Unlock()
	return nil
}

func (a *Allocator) IsAllocated(id uint64) bool {
	a.bmMu.Lock()
	defer a.bmMu.Unlock()
	return int(id) < a.totalBlocks && a.bm.IsSet(int(id))
}

func (a *Allocator) FreeCount() int {
	a.bmMu.Lock()
	defer a.bmMu.Unlock()
	return a.freeBlocks
}

func (a *Allocator) TotalBlocks() int { return a.totalBlocks }
func (a *Allocator) BlockSize() uint32 { return a.blockSize }

func (a *Allocator) GetMetadata(id uint64) (Metadata, error) {
	if int(id) >= a.totalBlocks {
		return Metadata{}, dferr.New(dferr.InvalidParam, "block id %d out of range", id)
	}
	a.mdMu.RLock()
	defer a.mdMu.RUnlock()
	return a.md[id], nil
}

func (a *Allocator) SetMetadata(id uint64, m Metadata) error {
	if int(id) >= a.totalBlocks {
		return dferr.New(dferr.InvalidParam, "block id %d out of range", id)
	}
	a.mdMu.Lock()
	defer a.mdMu.Unlock()
	a.md[id] = m
	return nil
}

// Sync writes the on-disk image: typed header, bitmap words, metadata
// array (spec §4.3/§6).
func (a *Allocator) Sync() error {
	a.bmMu.Lock()
	a.mdMu.RLock()
	defer a.bmMu.Unlock()
	defer a.mdMu.RUnlock()

	tmp := a.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return dferr.Wrap(dferr.FileOpenFailed, err, "create metadata tmp file")
	}

	hdr := make([]byte, 40)
	binary.LittleEndian.PutUint64(hdr[0:8], onDiskMagic)
	binary.LittleEndian.PutUint64(hdr[8:16], onDiskVersion)
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(a.blockSize))
	binary.LittleEndian.PutUint64(hdr[24:32], uint64(a.totalBlocks))
	binary.LittleEndian.PutUint64(hdr[32:40], uint64(a.freeBlocks))
	if _, err := f.Write(hdr); err != nil {
		f.Close()
		os.Remove(tmp)
		return dferr.Wrap(dferr.SystemError, err, "write metadata header")
	}

	words := a.bm.Words()
	wordsBuf := make([]byte, len(words)*8)
	for i, w := range words {
		binary.LittleEndian.PutUint64(wordsBuf[i*8:i*8+8], w)
	}
	if _, err := f.Write(wordsBuf); err != nil {
		f.Close()
		os.Remove(tmp)
		return dferr.Wrap(dferr.SystemError, err, "write bitmap words")
	}

	rec := make([]byte, metadataRecordSize)
	for _, m := range a.md {
		encodeMetadata(m, rec)
		if _, err := f.Write(rec); err != nil {
			f.Close()
			os.Remove(tmp)
			return dferr.Wrap(dferr.SystemError, err, "write metadata record")
		}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return dferr.Wrap(dferr.SystemError, err, "fsync metadata image")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return dferr.Wrap(dferr.SystemError, err, "close metadata image")
	}
	if err := os.Rename(tmp, a.path); err != nil {
		return dferr.Wrap(dferr.SystemError, err, "rename metadata image into place")
	}
	return nil
}
