// -----------------------------------------------------------------------
// Safe Goroutine - Panic-protected goroutine wrappers
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

// goroutineCounter tracks spawned goroutines for diagnostics
var goroutineCounter atomic.Int64

// GetGoroutineCount returns the number of goroutines spawned via SafeGo
func GetGoroutineCount() int64 {
	return goroutineCounter.Load()
}

// SafeGo runs fn in a goroutine with panic recovery. A panic is logged and
// the process keeps serving.
//
//	common.SafeGo(logger, "dispatch", func() {
//	    orchestrator.Dispatch(ctx, testID)
//	})
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	goroutineCounter.Add(1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)

				if logger != nil {
					logger.Error().
						Str("goroutine", name).
						Str("panic", fmt.Sprintf("%v", r)).
						Str("stack", string(buf[:n])).
						Msg("Recovered from panic in goroutine - continuing service operation")
					return
				}
				fmt.Fprintf(os.Stderr, "PANIC in goroutine %s: %v\n%s\n", name, r, buf[:n])
			}
		}()

		fn()
	}()
}
