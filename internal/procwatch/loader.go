// Package procwatch provides the CO-RE BPF loader and ring buffer
// processor feeding the process-launch predictor agent (§4.D).
//
// Responsibilities:
//   - Verify kernel version (>= 5.8, when sched_process_exec tracepoints
//     gained CO-RE support).
//   - Load the embedded BPF ELF object via cilium/ebpf CO-RE.
//   - Attach the single sched_process_exec tracepoint.
//   - Expose a ring buffer reader for exec events.
//
// Failure contract:
//   - Any failure in Load() is fatal for procwatch specifically, but not
//     for the engine as a whole: the process-launch predictor agent
//     degrades to Unknown-only classification (§7, missing-sensor
//     contract) rather than aborting startup.
package procwatch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"golang.org/x/sys/unix"
)

const (
	// MinKernelMajor and MinKernelMinor define the minimum supported kernel.
	MinKernelMajor = 5
	MinKernelMinor = 8

	// TracepointProgramName is the BPF program name as declared in the C source.
	TracepointProgramName = "thermopilot_sched_process_exec"

	// EventsMapName is the ring buffer map name.
	EventsMapName = "exec_events"
)

// Objects holds references to the loaded BPF program, map, and link.
// Callers must call Close() when done to release kernel resources.
type Objects struct {
	ExecTracepoint *ebpf.Program
	Events         *ebpf.Map

	link link.Link
}

// Close releases all BPF resources.
func (o *Objects) Close() error {
	var errs []error
	if o.link != nil {
		errs = append(errs, o.link.Close())
	}
	if o.ExecTracepoint != nil {
		errs = append(errs, o.ExecTracepoint.Close())
	}
	if o.Events != nil {
		errs = append(errs, o.Events.Close())
	}
	return errors.Join(errs...)
}

// Load performs the full BPF initialisation sequence:
//  1. Kernel version check (>= 5.8).
//  2. Load ELF from embedded bytes via CO-RE.
//  3. Attach the sched_process_exec tracepoint.
//
// Returns a fully initialised *Objects or a descriptive error. On any
// error, all partially allocated resources are released.
func Load() (*Objects, error) {
	if err := checkKernelVersion(MinKernelMajor, MinKernelMinor); err != nil {
		return nil, fmt.Errorf("kernel version check failed: %w", err)
	}

	spec, err := ebpf.LoadCollectionSpecFromReader(bytes.NewReader(bpfObjectBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to load BPF collection spec: %w", err)
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to load BPF collection: %w", err)
	}

	objs := &Objects{
		ExecTracepoint: coll.Programs[TracepointProgramName],
		Events:         coll.Maps[EventsMapName],
	}

	if err := objs.validate(); err != nil {
		_ = objs.Close()
		return nil, fmt.Errorf("BPF object validation failed: %w", err)
	}

	tp, err := link.Tracepoint("sched", "sched_process_exec", objs.ExecTracepoint, nil)
	if err != nil {
		_ = objs.Close()
		return nil, fmt.Errorf("tracepoint attachment failed: %w", err)
	}
	objs.link = tp

	return objs, nil
}

func (o *Objects) validate() error {
	var missing []string
	if o.ExecTracepoint == nil {
		missing = append(missing, "program:"+TracepointProgramName)
	}
	if o.Events == nil {
		missing = append(missing, "map:"+EventsMapName)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing BPF objects: %v", missing)
	}
	return nil
}

// checkKernelVersion reads the running kernel version via uname(2) and
// verifies it meets the minimum requirement.
func checkKernelVersion(major, minor int) error {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return fmt.Errorf("uname failed: %w", err)
	}
	release := unix.ByteSliceToString((*[65]byte)(unsafe.Pointer(&uts.Release[0]))[:])

	var kMajor, kMinor, kPatch int
	if _, err := fmt.Sscanf(release, "%d.%d.%d", &kMajor, &kMinor, &kPatch); err != nil {
		return fmt.Errorf("failed to parse kernel version %q: %w", release, err)
	}

	if kMajor < major || (kMajor == major && kMinor < minor) {
		return fmt.Errorf("kernel %d.%d.%d < required %d.%d",
			kMajor, kMinor, kPatch, major, minor)
	}
	return nil
}

// bpfVersionUnsupported is returned when a kernel or tracefs pre-flight
// check fails before any BPF object is loaded.
var bpfVersionUnsupported = errors.New("procwatch: BPF tracepoint support unavailable")

// Available does a cheap pre-flight check without loading any BPF
// objects, used by the orchestrator to decide whether to construct the
// process-launch predictor agent at all.
func Available() error {
	if err := checkKernelVersion(MinKernelMajor, MinKernelMinor); err != nil {
		return fmt.Errorf("%w: %v", bpfVersionUnsupported, err)
	}
	if _, err := os.Stat("/sys/kernel/debug/tracing"); err != nil {
		if errors.Is(err, syscall.ENOENT) {
			return fmt.Errorf("%w: tracefs not mounted", bpfVersionUnsupported)
		}
	}
	return nil
}
