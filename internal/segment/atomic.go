package segment

import (
	"sync/atomic"
	"unsafe"
)

// Cross-process atomics over the mapped byte region.
//
// sync/atomic operates on memory addresses, not goroutine-local state, so
// it works correctly across the mmap shared between the writer and every
// reader process as long as the target offset is naturally aligned - the
// same assumption the teacher's slotcache seqlock makes for its
// generation/meta/revision fields ("the platform provides atomic aligned
// 32/64-bit loads/stores", spec §4.1).

func atomicLoadU32(buf []byte, off int) uint32 {
	p := (*uint32)(unsafe.Pointer(&buf[off]))

	return atomic.LoadUint32(p)
}

func atomicStoreU32(buf []byte, off int, v uint32) {
	p := (*uint32)(unsafe.Pointer(&buf[off]))

	atomic.StoreUint32(p, v)
}
