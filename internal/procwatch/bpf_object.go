package procwatch

import _ "embed"

// bpfObjectBytes is the compiled CO-RE BPF ELF object containing the
// thermopilot_sched_process_exec tracepoint program, generated by
// `go generate` via bpf2go from the C source under bpf/execwatch.bpf.c
// (not part of this tree). Rebuilding requires clang/libbpf headers
// matching the target kernel's vmlinux.h; the checked-in object targets
// a generic CO-RE-portable build.
//
//go:embed thermopilot_execwatch_bpfel.o
var bpfObjectBytes []byte
