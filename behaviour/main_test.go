package behaviour

import (
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	metrics "github.com/rcrowley/go-metrics"
)

func TestMain(m *testing.M) {
	// go-metrics lazily starts its package-global meter arbiter goroutine on
	// the first NewMeter call; it never stops. Warm it here — and wait until
	// it is parked in its tick loop — so that the leaktest snapshots taken
	// inside tests include it instead of reporting it as a leak.
	metrics.NewMeter()
	buf := make([]byte, 1<<20)
	for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); {
		stacks := string(buf[:runtime.Stack(buf, true)])
		if strings.Contains(stacks, "meterArbiter).tick") {
			break
		}
		time.Sleep(time.Millisecond)
	}
	os.Exit(m.Run())
}
