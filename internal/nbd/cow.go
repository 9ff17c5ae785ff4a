package nbd

import (
	"sync"
)

// CowBlockSize is the granularity of the in-memory overlay. Generalized
// from go-ublk's fixed-shard memory backend (backend/mem.go in the
// example pack) into a sparse map keyed by block index, so the overlay
// only ever allocates memory for blocks that were actually written.
const CowBlockSize = 64 * 1024

// CowBackend layers a copy-on-write overlay over any other Backend:
// writes land in an in-memory map keyed by block index and never touch
// the wrapped Backend; reads fall through to it only for blocks never
// written through the overlay.
type CowBackend struct {
	base  Backend
	mu    sync.RWMutex
	dirty map[int64][]byte
}

// NewCowBackend wraps base with a sparse in-memory overlay.
func NewCowBackend(base Backend) *CowBackend {
	return &CowBackend{base: base, dirty: make(map[int64][]byte)}
}

func (c *CowBackend) blockRange(offset, length int64) (first, last int64) {
	first = offset / CowBlockSize
	last = (offset + length - 1) / CowBlockSize
	return
}

func (c *CowBackend) ReadAt(dst []byte, offset int64) (int, error) {
	if err := boundsCheck(offset, int64(len(dst)), c.base.Size()); err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	first, last := c.blockRange(offset, int64(len(dst)))
	total := 0
	for block := first; block <= last; block++ {
		blockStart := block * CowBlockSize
		blockEnd := blockStart + CowBlockSize

		reqStart := max64(offset, blockStart)
		reqEnd := min64(offset+int64(len(dst)), blockEnd)
		if reqStart >= reqEnd {
			continue
		}

		dstSlice := dst[reqStart-offset : reqEnd-offset]
		if overlay, ok := c.dirty[block]; ok {
			n := copy(dstSlice, overlay[reqStart-blockStart:reqEnd-blockStart])
			total += n
			continue
		}

		n, err := c.base.ReadAt(dstSlice, reqStart)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *CowBackend) WriteAt(src []byte, offset int64) (int, error) {
	if err := boundsCheck(offset, int64(len(src)), c.base.Size()); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	first, last := c.blockRange(offset, int64(len(src)))
	total := 0
	for block := first; block <= last; block++ {
		blockStart := block * CowBlockSize
		blockEnd := min64(blockStart+CowBlockSize, c.base.Size())

		overlay, ok := c.dirty[block]
		if !ok {
			overlay = make([]byte, blockEnd-blockStart)
			if _, err := c.base.ReadAt(overlay, blockStart); err != nil {
				return total, err
			}
			c.dirty[block] = overlay
		}

		reqStart := max64(offset, blockStart)
		reqEnd := min64(offset+int64(len(src)), blockEnd)
		n := copy(overlay[reqStart-blockStart:reqEnd-blockStart], src[reqStart-offset:reqEnd-offset])
		total += n
	}
	return total, nil
}

// Flush is a no-op: overlay contents are process-lifetime only and were
// never meant to reach the wrapped backend's durable storage.
func (c *CowBackend) Flush() error { return nil }

func (c *CowBackend) Trim(offset, length int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := boundsCheck(offset, length, c.base.Size()); err != nil {
		return err
	}
	first, last := c.blockRange(offset, length)
	for block := first; block <= last; block++ {
		delete(c.dirty, block)
	}
	return nil
}

func (c *CowBackend) Size() int64    { return c.base.Size() }
func (c *CowBackend) ReadOnly() bool { return false }

func (c *CowBackend) Close() error {
	c.mu.Lock()
	c.dirty = nil
	c.mu.Unlock()
	return c.base.Close()
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
