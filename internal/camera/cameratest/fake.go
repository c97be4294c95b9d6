// Package cameratest provides an in-memory camera.Client for tests.
package cameratest

import (
	"context"
	"fmt"
	"sync"

	"dogfinder/internal/camera"
)

// Client records every call and serves a fixed frame.
type Client struct {
	mu sync.Mutex

	Frame []byte

	LoginErr    error
	SnapshotErr error
	PTZErr      error

	// LoginGate, when non-nil, blocks Login until it is closed.
	LoginGate chan struct{}

	logins    int
	logouts   int
	snapshots int
	commands  []camera.PTZCommand
	expired   bool
}

// NewClient returns a fake whose snapshots return frame.
func NewClient(frame []byte) *Client {
	return &Client{Frame: frame}
}

func (c *Client) Login(ctx context.Context) error {
	if c.LoginGate != nil {
		select {
		case <-c.LoginGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logins++
	if c.LoginErr == nil {
		c.expired = false
	}
	return c.LoginErr
}

func (c *Client) Snapshot(ctx context.Context, channel int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired {
		return nil, fmt.Errorf("login lapsed: %w", camera.ErrSessionExpired)
	}
	c.snapshots++
	if c.SnapshotErr != nil {
		err := c.SnapshotErr
		return nil, err
	}
	out := make([]byte, len(c.Frame))
	copy(out, c.Frame)
	return out, nil
}

func (c *Client) PTZ(ctx context.Context, cmd camera.PTZCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired {
		return fmt.Errorf("login lapsed: %w", camera.ErrSessionExpired)
	}
	if c.PTZErr != nil {
		return c.PTZErr
	}
	c.commands = append(c.commands, cmd)
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
	return nil
}

// SetSnapshotErr changes the snapshot failure while the fake is in use.
func (c *Client) SetSnapshotErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SnapshotErr = err
}

// Expire makes calls fail with camera.ErrSessionExpired until the next login.
func (c *Client) Expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expired = true
}

func (c *Client) Logins() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logins
}

func (c *Client) Logouts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logouts
}

func (c *Client) Snapshots() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshots
}

// Commands returns a copy of the PTZ commands received so far.
func (c *Client) Commands() []camera.PTZCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]camera.PTZCommand, len(c.commands))
	copy(out, c.commands)
	return out
}
