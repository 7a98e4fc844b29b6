// Package buffer implements the reference-counted byte buffer and the
// multi-slice read cursor used across the muxing pipeline: a counted shared
// region with an offset/size view, an owns-storage flag, and copy-on-write
// promotion via Grab.
package buffer

import (
	"sync/atomic"

	"github.com/oxtoacart/bpool"
)

// counter is the shared state behind every Buffer handle pointing at the
// same backing storage.
type counter struct {
	data   []byte
	size   int // logical size field; may exceed len(data) after SetSize growth
	offset int
	owns   bool
	refs   int32
}

// Buffer is a handle onto a counted, possibly-owning byte region. Multiple
// Buffer values may share the same counter (via Retain); Clone always
// allocates a fresh, independent counter.
type Buffer struct {
	c *counter
}

// poolClass buckets backing-array allocations into power-of-two size
// classes, each served by its own bpool.BytePool, so that Alloc/Grab avoid a
// fresh GC allocation on every packet for the common case of repeated
// similarly-sized frames.
type poolClass struct {
	width int
	pool  *bpool.BytePool
}

var classes []poolClass

func init() {
	width := 256
	for width <= 1<<20 {
		classes = append(classes, poolClass{width: width, pool: bpool.NewBytePool(64, width)})
		width <<= 1
	}
}

func classFor(size int) *poolClass {
	for i := range classes {
		if classes[i].width >= size {
			return &classes[i]
		}
	}
	return nil
}

func allocBacking(size int) []byte {
	if pc := classFor(size); pc != nil {
		return pc.pool.Get()[:size]
	}
	return make([]byte, size)
}

func releaseBacking(data []byte, size int) {
	full := cap(data)
	if pc := classFor(full); pc != nil && full == pc.width {
		pc.pool.Put(data[:full])
	}
}

// New wraps data as a view; owns records whether the Buffer owns that
// storage. With owns false the caller retains responsibility for the
// storage's lifetime and the Buffer never releases it unless Grab is
// subsequently called.
func New(data []byte, owns bool) *Buffer {
	return &Buffer{c: &counter{data: data, size: len(data), owns: owns, refs: 1}}
}

// Alloc allocates size bytes from the pooled backing storage, owning.
func Alloc(size int) *Buffer {
	return &Buffer{c: &counter{data: allocBacking(size), size: size, owns: true, refs: 1}}
}

// Retain returns a new handle sharing the same underlying counter, bumping
// the reference count.
func (b *Buffer) Retain() *Buffer {
	atomic.AddInt32(&b.c.refs, 1)
	return &Buffer{c: b.c}
}

// Release drops this handle's reference. When the last reference to an
// owning buffer is released, the backing storage is returned to its pool
// class (or left for the GC if it came from a raw make()).
func (b *Buffer) Release() {
	if atomic.AddInt32(&b.c.refs, -1) == 0 && b.c.owns {
		releaseBacking(b.c.data, b.c.size)
		b.c.data = nil
	}
}

// Bytes returns the current view: data[offset:size].
func (b *Buffer) Bytes() []byte {
	if b.c.offset >= b.c.size {
		return nil
	}
	return b.c.data[b.c.offset:b.c.size]
}

// Size returns size - offset, the length of the current view.
func (b *Buffer) Size() int {
	return b.c.size - b.c.offset
}

// SetOffset moves the view's start. Panics if n > size; callers are expected
// to stay within the logical size.
func (b *Buffer) SetOffset(n int) {
	if n > b.c.size {
		panic("buffer: SetOffset past size")
	}
	b.c.offset = n
}

// SetSize sets the logical size field. Growing beyond the backing array's
// capacity is the caller's responsibility.
func (b *Buffer) SetSize(n int) {
	b.c.size = n
}

// IsUnique reports whether this is the only outstanding handle to the
// backing counter, the opt-in gate for in-place mutation of shared data.
func (b *Buffer) IsUnique() bool {
	return atomic.LoadInt32(&b.c.refs) == 1
}

// IsOwned reports whether this buffer owns its backing storage.
func (b *Buffer) IsOwned() bool {
	return b.c.owns
}

// Clone performs a deep copy; the result always owns fresh storage,
// independent of the source's counter.
func (b *Buffer) Clone() *Buffer {
	view := b.Bytes()
	data := allocBacking(len(view))
	copy(data, view)
	return &Buffer{c: &counter{data: data, size: len(data), owns: true, refs: 1}}
}

// Grab promotes a non-owning view to an owning copy, in place: allocates
// fresh storage sized to the current view, copies into it, and resets the
// offset to zero. It is idempotent on already-owning buffers. Because the
// counter is shared, Grab is visible to every handle retained from this one.
func (b *Buffer) Grab() {
	if b.c.owns {
		return
	}
	view := b.Bytes()
	data := allocBacking(len(view))
	copy(data, view)
	b.c.data = data
	b.c.owns = true
	b.c.size = len(data)
	b.c.offset = 0
}

// Lock clears the owns flag: an external party will free the storage, so
// Release must not.
func (b *Buffer) Lock() {
	b.c.owns = false
}
