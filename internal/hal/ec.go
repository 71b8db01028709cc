// Package hal — ec.go
//
// Embedded controller register I/O via the ec_sys debugfs interface
// (/sys/kernel/debug/ec/ec0/io). Guarded by a process-wide mutex and a
// configurable timeout, per §4.A and §5 "EC port I/O: process-wide
// mutex, held briefly".
//
// Fan registers (§6 hardware surface): 0xB0 = fan1 duty (0-255),
// 0xB1 = fan2 duty (0-255). Writes take effect on the next EC scan
// (~500 ms).
package hal

import (
	"context"
	"os"
	"sync"
	"time"
)

const ecDebugfsPath = "/sys/kernel/debug/ec/ec0/io"

const (
	RegFan1Duty = 0xB0
	RegFan2Duty = 0xB1
)

// EC provides mutex-guarded, timeout-bounded register access.
type EC struct {
	mu      sync.Mutex
	path    string
	timeout time.Duration

	failures int
	breakerUntil time.Time
}

// NewEC creates an EC accessor bounded by timeout per call.
func NewEC(timeout time.Duration) *EC {
	return &EC{path: ecDebugfsPath, timeout: timeout}
}

// ReadRegister reads a single EC register byte.
func (e *EC) ReadRegister(ctx context.Context, addr uint8) (uint8, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.breakerUntil.IsZero() && time.Now().Before(e.breakerUntil) {
		return 0, Unavailable("ec.ReadRegister")
	}

	done := make(chan struct{})
	var b [1]byte
	var err error
	go func() {
		defer close(done)
		f, ferr := os.OpenFile(e.path, os.O_RDONLY, 0)
		if ferr != nil {
			err = newErr(KindHwUnavailable, "ec.ReadRegister", ferr)
			return
		}
		defer f.Close()
		_, err = f.ReadAt(b[:], int64(addr))
	}()

	select {
	case <-done:
	case <-time.After(e.timeout):
		err = newErr(KindHwTransient, "ec.ReadRegister", context.DeadlineExceeded)
	case <-ctx.Done():
		err = newErr(KindCancelled, "ec.ReadRegister", ctx.Err())
	}

	e.recordOutcome(err)
	return b[0], err
}

// WriteRegister writes a single EC register byte.
func (e *EC) WriteRegister(ctx context.Context, addr uint8, value uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.breakerUntil.IsZero() && time.Now().Before(e.breakerUntil) {
		return Unavailable("ec.WriteRegister")
	}

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		f, ferr := os.OpenFile(e.path, os.O_WRONLY, 0)
		if ferr != nil {
			err = newErr(KindHwUnavailable, "ec.WriteRegister", ferr)
			return
		}
		defer f.Close()
		_, err = f.WriteAt([]byte{value}, int64(addr))
	}()

	select {
	case <-done:
	case <-time.After(e.timeout):
		err = newErr(KindHwTransient, "ec.WriteRegister", context.DeadlineExceeded)
	case <-ctx.Done():
		err = newErr(KindCancelled, "ec.WriteRegister", ctx.Err())
	}

	e.recordOutcome(err)
	return err
}

// recordOutcome tracks consecutive failures and opens a 30s breaker
// after three in a row (§7: "three consecutive failures of the same
// HAL primitive open a circuit breaker for 30 s"). Caller already
// holds e.mu.
func (e *EC) recordOutcome(err error) {
	if err == nil {
		e.failures = 0
		return
	}
	e.failures++
	if e.failures >= 3 {
		e.breakerUntil = time.Now().Add(30 * time.Second)
	}
}

// FanPctToByte converts a fan_speed_pct in [0,100] to the EC duty byte
// (§3 invariant 4, §8 property 3): round(pct*255/100).
func FanPctToByte(pct int) uint8 {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return uint8((pct*255 + 50) / 100)
}
