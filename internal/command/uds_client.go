package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// UDSClient is a JSON-RPC client over Unix Domain Socket.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
}

// NewUDSClient creates a new UDS client.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second // Default timeout
	}
	return &UDSClient{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Call sends a command and waits for response.
func (c *UDSClient) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	// Deadline is the earlier of client timeout and context deadline
	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsJSON = data
	}

	reqID := fmt.Sprintf("req-%d", time.Now().UnixNano()) // Use string ID
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsJSON,
		ID:      reqID,
	}

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestBytes)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return nil, fmt.Errorf("connection closed without response")
	}

	var jsonrpcResp JSONRPCResponse
	if err := json.Unmarshal(scanner.Bytes(), &jsonrpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Verify response ID matches (convert both to string for comparison)
	respIDStr := fmt.Sprintf("%v", jsonrpcResp.ID)
	if respIDStr != reqID {
		return nil, fmt.Errorf("response ID mismatch: expected %v, got %v", reqID, respIDStr)
	}

	resp := &Response{
		ID:     fmt.Sprintf("%v", jsonrpcResp.ID),
		Result: jsonrpcResp.Result,
		Error:  jsonrpcResp.Error,
	}

	return resp, nil
}

// EmulationStart is a convenience method for the emulation.start command.
// settings may be nil to start with defaults.
func (c *UDSClient) EmulationStart(ctx context.Context, settings json.RawMessage, filter string) (*Response, error) {
	return c.Call(ctx, "emulation.start", StartParams{Settings: settings, Filter: filter})
}

// EmulationStop is a convenience method for the emulation.stop command.
func (c *UDSClient) EmulationStop(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "emulation.stop", nil)
}

// UpdateSettings is a convenience method for emulation.update_settings.
func (c *UDSClient) UpdateSettings(ctx context.Context, settings json.RawMessage) (*Response, error) {
	return c.Call(ctx, "emulation.update_settings", UpdateSettingsParams{Settings: settings})
}

// UpdateFilter is a convenience method for emulation.update_filter.
func (c *UDSClient) UpdateFilter(ctx context.Context, filter string) (*Response, error) {
	return c.Call(ctx, "emulation.update_filter", UpdateFilterParams{Filter: filter})
}

// EmulationStatus is a convenience method for the emulation.status command.
func (c *UDSClient) EmulationStatus(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "emulation.status", nil)
}

// Shutdown is a convenience method for the daemon.shutdown command.
func (c *UDSClient) Shutdown(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "daemon.shutdown", nil)
}

// Ping checks whether the daemon is reachable on the control socket.
func (c *UDSClient) Ping(ctx context.Context) error {
	_, err := c.EmulationStatus(ctx)
	return err
}
