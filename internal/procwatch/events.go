// Package procwatch — events.go
//
// Ring buffer event processor for thermopilot's process-launch
// predictor agent (§4.D).
//
// Architecture:
//
//	[BPF ring buffer: sched_process_exec]
//	      v  (cilium/ebpf ringbuf.Reader)
//	[Processor goroutine]
//	      v  (buffered channel, cap=queueCap)
//	[Process-launch predictor agent]
//
// Backpressure: if the in-memory channel is full, new events are
// dropped and a counter is incremented; the kernel-side ring buffer
// drop count is not separately tracked since this package has only one
// tracepoint rather than the multi-hook LSM pipeline this was adapted
// from.
package procwatch

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"
	"unsafe"

	"github.com/cilium/ebpf/ringbuf"
	"go.uber.org/zap"
)

// ExecEvent is a single process-exec notification from the tracepoint.
type ExecEvent struct {
	PID       uint32
	PPID      uint32
	Timestamp time.Time
	Comm      string
}

// rawExecEvent mirrors the exec_event_t struct emitted by the BPF
// program: { u32 pid; u32 ppid; u64 timestamp_ns; char comm[16]; }.
type rawExecEvent struct {
	PID         uint32
	PPID        uint32
	TimestampNs uint64
	Comm        [16]byte
}

func init() {
	const want = 4 + 4 + 8 + 16
	if unsafe.Sizeof(rawExecEvent{}) != want {
		panic(fmt.Sprintf("procwatch: rawExecEvent size mismatch: got %d want %d", unsafe.Sizeof(rawExecEvent{}), want))
	}
}

// ParseEvent decodes a raw ring buffer record into an ExecEvent.
func ParseEvent(raw []byte) (ExecEvent, error) {
	const size = 4 + 4 + 8 + 16
	if len(raw) < size {
		return ExecEvent{}, fmt.Errorf("procwatch.ParseEvent: short record: %d bytes", len(raw))
	}

	pid := binary.LittleEndian.Uint32(raw[0:4])
	ppid := binary.LittleEndian.Uint32(raw[4:8])
	tsNs := binary.LittleEndian.Uint64(raw[8:16])
	comm := commToString(raw[16:32])

	return ExecEvent{
		PID:       pid,
		PPID:      ppid,
		Timestamp: time.Unix(0, int64(tsNs)),
		Comm:      comm,
	}, nil
}

func commToString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// Processor reads exec events from the BPF ring buffer and dispatches
// them over a buffered channel.
type Processor struct {
	objs     *Objects
	log      *zap.Logger
	queue    chan ExecEvent
	queueCap int
	dropped  uint64
}

// NewProcessor creates a Processor with the given queue capacity.
// queueCap must be > 0.
func NewProcessor(objs *Objects, log *zap.Logger, queueCap int) *Processor {
	return &Processor{
		objs:     objs,
		log:      log,
		queue:    make(chan ExecEvent, queueCap),
		queueCap: queueCap,
	}
}

// Dropped returns the count of events dropped due to a full queue.
func (p *Processor) Dropped() uint64 { return p.dropped }

// Run starts the ring buffer reader and returns the event channel
// without blocking. The reader goroutine runs until ctx is cancelled,
// then closes the channel.
func (p *Processor) Run(ctx context.Context) (<-chan ExecEvent, error) {
	rd, err := ringbuf.NewReader(p.objs.Events)
	if err != nil {
		return nil, fmt.Errorf("ringbuf.NewReader: %w", err)
	}

	go func() {
		defer close(p.queue)
		defer rd.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_ = rd.SetDeadline(time.Now().Add(100 * time.Millisecond))
			record, err := rd.Read()
			if err != nil {
				if ringbuf.IsUnrecoverableError(err) {
					p.log.Error("unrecoverable ring buffer error", zap.Error(err))
					return
				}
				continue
			}

			event, err := ParseEvent(record.RawSample)
			if err != nil {
				p.log.Warn("malformed exec event", zap.Error(err), zap.Int("raw_len", len(record.RawSample)))
				continue
			}

			select {
			case p.queue <- event:
			default:
				p.dropped++
				p.log.Debug("exec event queue full, dropping event", zap.Uint32("pid", event.PID))
			}
		}
	}()

	return p.queue, nil
}
