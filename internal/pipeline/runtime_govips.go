//go:build govips

package pipeline

import (
	"runtime"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

// libvips may be started once per process; a stopped runtime stays stopped.
var vipsRuntime struct {
	once    sync.Once
	mu      sync.Mutex
	running bool
}

// Startup initialises libvips for the WebP transcoder. Repeated calls are
// no-ops.
func Startup() error {
	vipsRuntime.once.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelWarning)
		vips.Startup(&vips.Config{
			ConcurrencyLevel: runtime.NumCPU(),
			MaxCacheMem:      64 << 20,
			MaxCacheSize:     50,
		})

		vipsRuntime.mu.Lock()
		vipsRuntime.running = true
		vipsRuntime.mu.Unlock()
	})
	return nil
}

func Shutdown() {
	vipsRuntime.mu.Lock()
	defer vipsRuntime.mu.Unlock()
	if vipsRuntime.running {
		vips.Shutdown()
		vipsRuntime.running = false
	}
}

func newTranscoder() Transcoder {
	return govipsTranscoder{}
}
