// Package vmo implements the framework's shared-memory primitives: a
// single mapped VMO (a fixed-size byte buffer with sharded-lock
// byte-granular access) and the VMO store that multiplexes MAX_VMOS of
// them.
package vmo

import "sync"

// ShardSize bounds how many bytes a single lock in a VMO's shard array
// guards, balancing parallel tx/rx/fan-out access against lock overhead.
const ShardSize = 64 * 1024

// ErrOutOfRange is returned when an access falls outside the VMO's size.
var ErrOutOfRange = errOutOfRange{}

type errOutOfRange struct{}

func (errOutOfRange) Error() string { return "vmo: access out of range" }

// VMO is a fixed-size, R/W-mapped region of shared memory. A session's
// data VMO and descriptor VMO are each represented by one VMO value.
type VMO struct {
	data   []byte
	size   int64
	shards []sync.RWMutex
}

// New allocates a VMO of the given size, simulating the mapping a real
// kernel-shared VMO would receive.
func New(size int64) *VMO {
	if size <= 0 {
		panic("vmo: size must be > 0")
	}
	numShards := (size + ShardSize - 1) / ShardSize
	return &VMO{
		data:   make([]byte, size),
		size:   size,
		shards: make([]sync.RWMutex, numShards),
	}
}

// Size returns the VMO's fixed byte size.
func (v *VMO) Size() int64 { return v.size }

// Bytes returns the VMO's backing storage directly, unmediated by the
// shard locks ReadAt/WriteAt/CopyFrom use. A real VMO is memory shared
// with the device by mapping, not by a locked RPC surface, so the
// device-implementation side of PrepareVmo aliases this slice instead
// of going through the framework's session-side accessors; callers on
// that side are expected to synchronize with the framework the same
// way real hardware does, via descriptor ownership handoff rather than
// a byte-range lock.
func (v *VMO) Bytes() []byte { return v.data }

func (v *VMO) shardRange(off, length int64) (start, end int) {
	start = int(off / ShardSize)
	end = int((off + length - 1) / ShardSize)
	if end >= len(v.shards) {
		end = len(v.shards) - 1
	}
	return start, end
}

func (v *VMO) checkBounds(off, length int64) error {
	if length < 0 || off < 0 || off+length > v.size {
		return ErrOutOfRange
	}
	return nil
}

// ReadAt copies len(p) bytes starting at off into p. Fails OUT_OF_RANGE
// if the range falls outside the VMO.
func (v *VMO) ReadAt(p []byte, off int64) error {
	if err := v.checkBounds(off, int64(len(p))); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	start, end := v.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		v.shards[i].RLock()
	}
	copy(p, v.data[off:off+int64(len(p))])
	for i := start; i <= end; i++ {
		v.shards[i].RUnlock()
	}
	return nil
}

// WriteAt writes p into the VMO starting at off. Fails OUT_OF_RANGE if
// the range falls outside the VMO.
func (v *VMO) WriteAt(p []byte, off int64) error {
	if err := v.checkBounds(off, int64(len(p))); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	start, end := v.shardRange(off, int64(len(p)))
	for i := start; i <= end; i++ {
		v.shards[i].Lock()
	}
	copy(v.data[off:off+int64(len(p))], p)
	for i := start; i <= end; i++ {
		v.shards[i].Unlock()
	}
	return nil
}

// CopyFrom copies length bytes from src at srcOff into v at dstOff
// through a staging buffer: src is read under its shard locks, then v
// is written under its own; the two lock ranges are never held
// together. Used for the
// rx fan-out path where a packet is copied from one session's tx
// payload into another session's rx payload.
func (v *VMO) CopyFrom(dstOff int64, src *VMO, srcOff, length int64) error {
	if err := v.checkBounds(dstOff, length); err != nil {
		return err
	}
	if err := src.checkBounds(srcOff, length); err != nil {
		return err
	}
	if length == 0 {
		return nil
	}
	buf := make([]byte, length)
	if err := src.ReadAt(buf, srcOff); err != nil {
		return err
	}
	return v.WriteAt(buf, dstOff)
}
