package operatortest

import (
	"sync"
	"testing"

	"mit.edu/dsg/vexec/storage"
)

// DefaultCacheBlocks sizes the shared cache when no size is given.
const DefaultCacheBlocks = 64

var (
	sharedCacheOnce sync.Once
	sharedCache     *storage.BlockCache
)

// SharedBlockCache returns the cache shared by every test in the process. It is created on first use with blocks
// frames; later sizes are ignored.
func SharedBlockCache(blocks int) *storage.BlockCache {
	sharedCacheOnce.Do(func() {
		if blocks <= 0 {
			blocks = DefaultCacheBlocks
		}
		sharedCache = storage.NewBlockCache(blocks)
	})
	return sharedCache
}

// InstallAsyncCache makes the shared cache the process default. The returned function puts the previous default
// back; calling it more than once has no further effect.
func InstallAsyncCache(blocks int) (restore func()) {
	return swapDefaultCache(SharedBlockCache(blocks))
}

// UninstallAsyncCache turns off block caching until the returned function is called.
func UninstallAsyncCache() (restore func()) {
	return swapDefaultCache(nil)
}

func swapDefaultCache(c *storage.BlockCache) func() {
	prev := storage.SetDefaultBlockCache(c)
	var once sync.Once
	return func() {
		once.Do(func() { storage.SetDefaultBlockCache(prev) })
	}
}

// UseAsyncCache installs or removes the shared cache for the rest of t.
func UseAsyncCache(t testing.TB, enabled bool, blocks int) {
	t.Helper()
	if enabled {
		t.Cleanup(InstallAsyncCache(blocks))
	} else {
		t.Cleanup(UninstallAsyncCache())
	}
}
