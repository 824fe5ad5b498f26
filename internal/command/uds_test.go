package command

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startTestServer(t *testing.T, name string) (*UDSClient, context.CancelFunc, chan error) {
	t.Helper()

	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, name)

	handler := newTestHandler(t)
	server := NewUDSServer(socketPath, handler)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	// Wait a bit for server to start
	time.Sleep(100 * time.Millisecond)

	return NewUDSClient(socketPath, 5*time.Second), cancel, errCh
}

func TestUDSServerClient_Integration(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "test.sock")

	handler := newTestHandler(t)
	server := NewUDSServer(socketPath, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)

	client := NewUDSClient(socketPath, 5*time.Second)

	t.Run("emulation.status", func(t *testing.T) {
		resp, err := client.EmulationStatus(context.Background())
		if err != nil {
			t.Fatalf("EmulationStatus failed: %v", err)
		}
		if resp.Error != nil {
			t.Errorf("unexpected error: %v", resp.Error.Message)
		}

		result, ok := resp.Result.(map[string]interface{})
		if !ok {
			t.Fatal("result is not a map")
		}
		if _, exists := result["emulation"]; !exists {
			t.Error("result missing 'emulation' field")
		}
	})

	t.Run("start_update_stop", func(t *testing.T) {
		resp, err := client.EmulationStart(context.Background(),
			[]byte(`{"drop":{"enabled":true,"probability":0.2,"inbound":false}}`), "udp")
		if err != nil {
			t.Fatalf("EmulationStart failed: %v", err)
		}
		if resp.Error != nil {
			t.Fatalf("unexpected error: %v", resp.Error.Message)
		}

		resp, err = client.UpdateSettings(context.Background(),
			[]byte(`{"lag":{"enabled":true,"probability":1,"delay_ms":20}}`))
		if err != nil {
			t.Fatalf("UpdateSettings failed: %v", err)
		}
		if resp.Error != nil {
			t.Errorf("unexpected error: %v", resp.Error.Message)
		}

		resp, err = client.UpdateFilter(context.Background(), "udp and host 192.0.2.1")
		if err != nil {
			t.Fatalf("UpdateFilter failed: %v", err)
		}
		if resp.Error != nil {
			t.Errorf("unexpected error: %v", resp.Error.Message)
		}

		resp, err = client.EmulationStop(context.Background())
		if err != nil {
			t.Fatalf("EmulationStop failed: %v", err)
		}
		if resp.Error != nil {
			t.Errorf("unexpected error: %v", resp.Error.Message)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := client.Ping(context.Background()); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("unknown_method", func(t *testing.T) {
		resp, err := client.Call(context.Background(), "unknown.method", nil)
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if resp.Error == nil {
			t.Error("expected error for unknown method")
		}
		if resp.Error.Code != ErrCodeMethodNotFound {
			t.Errorf("error code = %d, want %d", resp.Error.Code, ErrCodeMethodNotFound)
		}
	})

	// Stop server
	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			t.Errorf("server error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("server didn't stop in time")
	}

	// Verify socket file is removed
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket file not removed after server stop")
	}
}

func TestUDSClient_ConnectionError(t *testing.T) {
	client := NewUDSClient("/tmp/non-existent-socket.sock", 1*time.Second)

	_, err := client.EmulationStatus(context.Background())
	if err == nil {
		t.Error("expected connection error")
	}
}

func TestUDSClient_Timeout(t *testing.T) {
	tmpDir := t.TempDir()
	socketPath := filepath.Join(tmpDir, "test-timeout.sock")

	handler := newTestHandler(t)
	server := NewUDSServer(socketPath, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go server.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	client := NewUDSClient(socketPath, 1*time.Nanosecond)

	_, err := client.EmulationStatus(context.Background())
	if err == nil {
		t.Error("expected timeout error")
	}
}

func TestUDSServer_MultipleConnections(t *testing.T) {
	client, cancel, _ := startTestServer(t, "test-multi.sock")
	defer cancel()

	errCh := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := client.EmulationStatus(context.Background())
			errCh <- err
		}()
	}

	for i := 0; i < 5; i++ {
		if err := <-errCh; err != nil {
			t.Errorf("client %d failed: %v", i, err)
		}
	}
}

func TestUDSServer_MalformedRequest(t *testing.T) {
	client, cancel, _ := startTestServer(t, "test-malformed.sock")
	defer cancel()

	// A request with invalid settings must come back as a JSON-RPC error,
	// not a transport failure.
	resp, err := client.EmulationStart(context.Background(),
		[]byte(`{"tamper":{"enabled":true,"probability":0.5,"amount":7}}`), "")
	if err != nil {
		t.Fatalf("EmulationStart failed: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected error for out-of-range tamper amount")
	}
}

func TestNewUDSClient_DefaultTimeout(t *testing.T) {
	client := NewUDSClient("/tmp/test.sock", 0)
	if client.timeout != 10*time.Second {
		t.Errorf("default timeout = %v, want 10s", client.timeout)
	}

	client2 := NewUDSClient("/tmp/test.sock", 5*time.Second)
	if client2.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", client2.timeout)
	}
}
