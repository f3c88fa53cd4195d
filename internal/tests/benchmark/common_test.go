package benchmark

import (
	"crypto/rand"
	"fmt"
	"io"
	"runtime"
	"testing"

	"github.com/yndnr/remotely/internal/telemetry/logger"
)

// FrameSizes are the payload sizes most benchmarks run with.
var FrameSizes = []int{64, 1024, 16 << 10, 256 << 10}

func sizeLabel(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%dMiB", n>>20)
	case n >= 1<<10:
		return fmt.Sprintf("%dKiB", n>>10)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func randomBytes(b *testing.B, n int) []byte {
	b.Helper()
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		b.Fatalf("rand.Read() error = %v", err)
	}
	return buf
}

func quietLogger() logger.Logger {
	l, _ := logger.New(logger.Config{Level: "error", Output: io.Discard})
	return l
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}
