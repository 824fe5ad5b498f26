package command

import (
	"context"
	"encoding/json"
	"testing"

	"icc.tech/netem-agent/internal/capture"
	"icc.tech/netem-agent/internal/engine"
)

func newTestHandler(t *testing.T) *CommandHandler {
	t.Helper()
	p := engine.New(engine.Options{
		CycleMS: 1,
		Seed:    1,
		OpenHandle: func() (capture.Handle, error) {
			return capture.NewMemoryHandle(64), nil
		},
	})
	t.Cleanup(func() { p.Stop() })
	return NewCommandHandler(p)
}

func TestCommandHandler_StartStop(t *testing.T) {
	handler := newTestHandler(t)

	params, err := json.Marshal(StartParams{
		Settings: json.RawMessage(`{"drop":{"enabled":true,"probability":0.5}}`),
	})
	if err != nil {
		t.Fatalf("failed to marshal params: %v", err)
	}

	cmd := Command{Method: "emulation.start", Params: params, ID: "req-1"}
	resp := handler.Handle(context.Background(), cmd)

	if resp.ID != "req-1" {
		t.Errorf("response ID = %s, want req-1", resp.ID)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("result is not a map")
	}
	if result["status"] != "started" {
		t.Errorf("status = %v, want started", result["status"])
	}

	// Starting twice must fail
	resp = handler.Handle(context.Background(), Command{Method: "emulation.start", ID: "req-2"})
	if resp.Error == nil {
		t.Error("expected error for double start")
	}

	resp = handler.Handle(context.Background(), Command{Method: "emulation.stop", ID: "req-3"})
	if resp.Error != nil {
		t.Errorf("stop failed: %v", resp.Error.Message)
	}
}

func TestCommandHandler_StopWhileIdle(t *testing.T) {
	handler := newTestHandler(t)

	resp := handler.Handle(context.Background(), Command{Method: "emulation.stop", ID: "req-1"})
	if resp.Error == nil {
		t.Error("expected error when stopping idle emulation")
	}
	if resp.Error.Code != ErrCodeInternalError {
		t.Errorf("error code = %d, want %d", resp.Error.Code, ErrCodeInternalError)
	}
}

func TestCommandHandler_StartInvalidSettings(t *testing.T) {
	handler := newTestHandler(t)

	params, _ := json.Marshal(StartParams{
		Settings: json.RawMessage(`{"drop":{"enabled":true,"probability":1.5}}`),
	})
	resp := handler.Handle(context.Background(), Command{
		Method: "emulation.start", Params: params, ID: "req-1",
	})

	if resp.Error == nil {
		t.Fatal("expected error for out-of-range probability")
	}
}

func TestCommandHandler_StartMalformedParams(t *testing.T) {
	handler := newTestHandler(t)

	resp := handler.Handle(context.Background(), Command{
		Method: "emulation.start",
		Params: json.RawMessage(`{not json`),
		ID:     "req-1",
	})

	if resp.Error == nil {
		t.Fatal("expected error for malformed params")
	}
	if resp.Error.Code != ErrCodeInvalidParams {
		t.Errorf("error code = %d, want %d", resp.Error.Code, ErrCodeInvalidParams)
	}
}

func TestCommandHandler_UpdateSettings(t *testing.T) {
	handler := newTestHandler(t)

	resp := handler.Handle(context.Background(), Command{Method: "emulation.start", ID: "req-1"})
	if resp.Error != nil {
		t.Fatalf("start failed: %v", resp.Error.Message)
	}

	params, _ := json.Marshal(UpdateSettingsParams{
		Settings: json.RawMessage(`{"lag":{"enabled":true,"probability":1,"delay_ms":50}}`),
	})
	resp = handler.Handle(context.Background(), Command{
		Method: "emulation.update_settings", Params: params, ID: "req-2",
	})
	if resp.Error != nil {
		t.Errorf("update_settings failed: %v", resp.Error.Message)
	}
}

func TestCommandHandler_UpdateFilter(t *testing.T) {
	handler := newTestHandler(t)

	resp := handler.Handle(context.Background(), Command{Method: "emulation.start", ID: "req-1"})
	if resp.Error != nil {
		t.Fatalf("start failed: %v", resp.Error.Message)
	}

	params, _ := json.Marshal(UpdateFilterParams{Filter: "udp and port 5060"})
	resp = handler.Handle(context.Background(), Command{
		Method: "emulation.update_filter", Params: params, ID: "req-2",
	})
	if resp.Error != nil {
		t.Errorf("update_filter failed: %v", resp.Error.Message)
	}

	// Garbage filter must be rejected and the old one retained
	params, _ = json.Marshal(UpdateFilterParams{Filter: "not a filter ))("})
	resp = handler.Handle(context.Background(), Command{
		Method: "emulation.update_filter", Params: params, ID: "req-3",
	})
	if resp.Error == nil {
		t.Error("expected error for invalid filter expression")
	}
}

func TestCommandHandler_Status(t *testing.T) {
	handler := newTestHandler(t)

	cmd := Command{Method: "emulation.status", ID: "req-1"}
	resp := handler.Handle(context.Background(), cmd)

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("result is not a map")
	}
	if _, exists := result["emulation"]; !exists {
		t.Error("result missing 'emulation' field")
	}
	if _, exists := result["uptime_sec"]; !exists {
		t.Error("result missing 'uptime_sec' field")
	}

	status, ok := result["emulation"].(engine.Status)
	if !ok {
		t.Fatal("emulation field is not an engine status")
	}
	if status.Running {
		t.Error("emulation should be idle before start")
	}
}

func TestCommandHandler_Shutdown(t *testing.T) {
	handler := newTestHandler(t)

	// Without a registered callback the command fails
	resp := handler.Handle(context.Background(), Command{Method: "daemon.shutdown", ID: "req-1"})
	if resp.Error == nil {
		t.Error("expected error without shutdown callback")
	}

	called := make(chan struct{})
	handler.SetShutdownFunc(func() { close(called) })

	resp = handler.Handle(context.Background(), Command{Method: "daemon.shutdown", ID: "req-2"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}
	<-called
}

func TestCommandHandler_MethodNotFound(t *testing.T) {
	handler := newTestHandler(t)

	resp := handler.Handle(context.Background(), Command{Method: "emulation.reverse", ID: "req-1"})
	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, ErrCodeMethodNotFound)
	}
}
