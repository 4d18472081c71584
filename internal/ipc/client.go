package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Ping checks the daemon is reachable.
func (c *Client) Ping() (*PingResponse, error) {
	var resp PingResponse
	if err := c.client.Call("Dealsync.Ping", PingRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon and sync engine status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Dealsync.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncNow runs one drain pass and waits for it to finish.
func (c *Client) SyncNow() (*SyncNowResponse, error) {
	var resp SyncNowResponse
	if err := c.client.Call("Dealsync.SyncNow", SyncNowRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EnqueueUpload queues a media file for background upload.
func (c *Client) EnqueueUpload(req EnqueueUploadRequest) (*EnqueueUploadResponse, error) {
	var resp EnqueueUploadResponse
	if err := c.client.Call("Dealsync.EnqueueUpload", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EnqueueMutation queues a local write for later replay.
func (c *Client) EnqueueMutation(req EnqueueMutationRequest) (*EnqueueMutationResponse, error) {
	var resp EnqueueMutationResponse
	if err := c.client.Call("Dealsync.EnqueueMutation", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns uploads optionally filtered by statuses, plus the
// pending mutations.
func (c *Client) QueueList(statuses []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	req := QueueListRequest{Statuses: statuses}
	if err := c.client.Call("Dealsync.QueueList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRetry moves failed uploads back to pending.
func (c *Client) QueueRetry(ids []string) (*QueueRetryResponse, error) {
	var resp QueueRetryResponse
	req := QueueRetryRequest{IDs: ids}
	if err := c.client.Call("Dealsync.QueueRetry", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClearCompleted removes finished uploads.
func (c *Client) QueueClearCompleted(maxAgeHours int) (*QueueClearCompletedResponse, error) {
	var resp QueueClearCompletedResponse
	req := QueueClearCompletedRequest{MaxAgeHours: maxAgeHours}
	if err := c.client.Call("Dealsync.QueueClearCompleted", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CacheClear drops cached entities.
func (c *Client) CacheClear() (*CacheClearResponse, error) {
	var resp CacheClearResponse
	if err := c.client.Call("Dealsync.CacheClear", CacheClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SignOut wipes all local state.
func (c *Client) SignOut() (*SignOutResponse, error) {
	var resp SignOutResponse
	if err := c.client.Call("Dealsync.SignOut", SignOutRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Dealsync.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Dealsync.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
