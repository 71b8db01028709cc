package api

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	return NewServer("/tmp/unused.sock", testEngine(t), zap.NewNop())
}

func TestServer_Dispatch_SnapshotReturnsOK(t *testing.T) {
	s := testServer(t)
	resp := s.dispatch(context.Background(), Request{Cmd: "snapshot"})
	if !resp.OK || resp.Snapshot == nil {
		t.Fatalf("expected ok response with a snapshot, got %+v", resp)
	}
}

func TestServer_Dispatch_UnknownCommandIsAnError(t *testing.T) {
	s := testServer(t)
	resp := s.dispatch(context.Background(), Request{Cmd: "bogus"})
	if resp.OK {
		t.Fatal("expected unknown command to report !ok")
	}
}

func TestServer_Dispatch_RecordUserChangeRequiresControl(t *testing.T) {
	s := testServer(t)
	resp := s.dispatch(context.Background(), Request{Cmd: "record_user_change", Value: "90"})
	if resp.OK {
		t.Fatal("expected missing control to report !ok")
	}
}

func TestServer_Dispatch_ForceGPUModeExecutes(t *testing.T) {
	s := testServer(t)
	resp := s.dispatch(context.Background(), Request{Cmd: "force_gpu_mode", Mode: "On", Reason: "test"})
	if !resp.OK || resp.Executed != 1 {
		t.Fatalf("expected forced action executed, got %+v", resp)
	}
}

func TestServer_Dispatch_StartThenStatisticsReportsRunning(t *testing.T) {
	s := testServer(t)
	s.dispatch(context.Background(), Request{Cmd: "start"})
	resp := s.dispatch(context.Background(), Request{Cmd: "statistics"})
	if !resp.OK || resp.Stats == nil || resp.Stats.State != "Running" {
		t.Fatalf("expected Running state in statistics, got %+v", resp)
	}
	s.dispatch(context.Background(), Request{Cmd: "stop"})
}
