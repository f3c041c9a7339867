package storage

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/vexec/common"
)

// BlockID names one block of one tuple file. File is the ID from the file's footer; Path alone is not enough
// because a path can be rewritten while its old blocks are still cached.
type BlockID struct {
	Path   string
	File   uuid.UUID
	Offset int64
}

type blockFrameMetadata struct {
	id       BlockID
	valid    bool
	pinCount int
	refBit   bool
	sync.Mutex
}

// BlockFrame holds the decompressed rows of one cached block.
type BlockFrame struct {
	data []byte
	blockFrameMetadata
}

// Bytes returns the decompressed block. The slice stays valid while the frame is pinned.
func (frame *BlockFrame) Bytes() []byte {
	return frame.data
}

// BlockCacheStats is a snapshot of cache counters.
type BlockCacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// BlockCache keeps decompressed tuple file blocks in a fixed number of frames and evicts with the clock policy.
// Callers pin a block with GetBlock and must unpin it with UnpinBlock; pinned frames are never evicted. All methods
// are safe for concurrent use.
type BlockCache struct {
	frames     []BlockFrame
	clockHand  uint64
	blockTable *xsync.MapOf[BlockID, *BlockFrame]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewBlockCache creates a cache with numBlocks frames.
func NewBlockCache(numBlocks int) *BlockCache {
	common.Assert(numBlocks > 0, "block cache needs at least one frame, got %d", numBlocks)
	return &BlockCache{
		frames:     make([]BlockFrame, numBlocks),
		blockTable: xsync.NewMapOf[BlockID, *BlockFrame](),
	}
}

// Capacity returns the number of frames.
func (c *BlockCache) Capacity() int {
	return len(c.frames)
}

// Stats returns the current hit, miss and eviction counts.
func (c *BlockCache) Stats() BlockCacheStats {
	return BlockCacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

func tryTouchBlock(frame *BlockFrame, id BlockID) bool {
	frame.Lock()
	defer frame.Unlock()
	// The frame may have been recycled between the table lookup and the lock.
	if !frame.valid || frame.id != id {
		return false
	}
	frame.pinCount++
	frame.refBit = true
	return true
}

const (
	// frames inspected before yielding
	strideSize = 64
	// after this many second chances the ref bit is ignored
	maxSecondChances = 64
	// full passes over the frames before giving up on finding an unpinned one
	maxVictimSweeps = 4
)

// findVictim returns an unpinned frame, LOCKED.
func (c *BlockCache) findVictim() (*BlockFrame, error) {
	numFrames := uint64(len(c.frames))
	secondChances := 0
	budget := maxVictimSweeps*numFrames + maxSecondChances
	for inspected := uint64(0); inspected < budget; {
		for i := 0; i < strideSize && inspected < budget; i++ {
			inspected++
			idx := atomic.AddUint64(&c.clockHand, 1) % numFrames

			frame := &c.frames[idx]
			if !frame.TryLock() {
				continue
			}
			if frame.pinCount > 0 {
				frame.Unlock()
				continue
			}
			if secondChances >= maxSecondChances || !frame.refBit {
				return frame, nil
			}
			frame.refBit = false
			frame.Unlock()
			secondChances++
		}
		runtime.Gosched()
	}
	return nil, common.NewError(common.CacheFullError, "all %d block frames are pinned", numFrames)
}

// GetBlock returns the frame holding block id, pinned. On a miss it picks a victim frame and fills it with the
// bytes returned by load. Concurrent misses on the same block call load once.
func (c *BlockCache) GetBlock(id BlockID, load func() ([]byte, error)) (*BlockFrame, error) {
	for {
		if frame, ok := c.blockTable.Load(id); ok {
			if tryTouchBlock(frame, id) {
				c.hits.Add(1)
				return frame, nil
			}
			continue
		}

		victim, err := c.findVictim()
		if err != nil {
			return nil, err
		}

		// Only the goroutine that installs its frame for id loads the block; the others wait on that frame's lock.
		actual, loaded := c.blockTable.LoadOrStore(id, victim)
		if loaded {
			victim.Unlock()
			if tryTouchBlock(actual, id) {
				c.hits.Add(1)
				return actual, nil
			}
			continue
		}

		if victim.valid {
			c.blockTable.Delete(victim.id)
			c.evictions.Add(1)
		}
		victim.valid = false

		data, err := load()
		if err != nil {
			victim.data = nil
			victim.Unlock()
			c.blockTable.Delete(id)
			return nil, err
		}

		c.misses.Add(1)
		// A fresh slice rather than a copy into the old one: readers of the evicted block may still hold it.
		victim.data = data
		victim.id = id
		victim.valid = true
		victim.pinCount = 1
		victim.refBit = false
		victim.Unlock()
		return victim, nil
	}
}

// UnpinBlock releases one pin on frame.
func (c *BlockCache) UnpinBlock(frame *BlockFrame) {
	frame.Lock()
	defer frame.Unlock()
	common.Assert(frame.pinCount > 0, "attempting to unpin a block that is not pinned")
	frame.pinCount--
}

// PinnedBlocks returns the number of frames with at least one pin.
func (c *BlockCache) PinnedBlocks() int {
	n := 0
	for i := range c.frames {
		frame := &c.frames[i]
		frame.Lock()
		if frame.pinCount > 0 {
			n++
		}
		frame.Unlock()
	}
	return n
}

var defaultBlockCache atomic.Pointer[BlockCache]

// DefaultBlockCache returns the process-wide cache used by TupleFile.ReadBlock, or nil when reads are uncached.
func DefaultBlockCache() *BlockCache {
	return defaultBlockCache.Load()
}

// SetDefaultBlockCache installs c as the process-wide cache and returns the previous one. Passing nil makes reads
// uncached.
func SetDefaultBlockCache(c *BlockCache) *BlockCache {
	return defaultBlockCache.Swap(c)
}
