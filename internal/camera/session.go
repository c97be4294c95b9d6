package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dogfinder/internal/logger"
)

// State of the remote camera session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// attempt is one in-flight login shared by every caller that arrives while it runs.
type attempt struct {
	done chan struct{}
	err  error
}

// Session owns the single live connection to the camera. It logs in lazily
// and forgets the login when the camera rejects the token.
type Session struct {
	client  Client
	channel int
	logger  *logger.Logger

	mu      sync.Mutex
	state   State
	pending *attempt
}

func NewSession(client Client, channel int, logger *logger.Logger) *Session {
	return &Session{
		client:  client,
		channel: channel,
		logger:  logger,
		state:   Disconnected,
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Channel returns the camera channel this session addresses.
func (s *Session) Channel() int {
	return s.channel
}

// Connect logs in unless the session is already connected. Callers arriving
// while a login is in progress wait for that login instead of starting another.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Connected:
		s.mu.Unlock()
		return nil
	case Connecting:
		a := s.pending
		s.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrCameraUnavailable, ctx.Err())
		}
	}

	a := &attempt{done: make(chan struct{})}
	s.pending = a
	s.state = Connecting
	s.mu.Unlock()

	s.logger.Info("Connecting to camera (channel %d)", s.channel)
	err := s.client.Login(ctx)

	s.mu.Lock()
	if err != nil {
		s.state = Disconnected
		a.err = fmt.Errorf("camera login: %w: %w", ErrCameraUnavailable, err)
	} else {
		s.state = Connected
	}
	s.pending = nil
	s.mu.Unlock()
	close(a.done)

	if err != nil {
		s.logger.Error("Camera login failed: %v", err)
		return a.err
	}
	s.logger.Info("Camera session established")
	return nil
}

// Snapshot returns the current frame as JPEG bytes, connecting first if needed.
func (s *Session) Snapshot(ctx context.Context) ([]byte, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}

	data, err := s.client.Snapshot(ctx, s.channel)
	if errors.Is(err, ErrSessionExpired) {
		if err := s.renew(ctx); err != nil {
			return nil, err
		}
		data, err = s.client.Snapshot(ctx, s.channel)
	}
	if err != nil {
		return nil, s.fail("snapshot", err)
	}
	return data, nil
}

// SendPTZ issues one motion command. Continuous operations keep moving until
// a Stop is sent; sending Stop to a camera at rest is harmless.
func (s *Session) SendPTZ(ctx context.Context, cmd PTZCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}

	err := s.client.PTZ(ctx, cmd)
	if errors.Is(err, ErrSessionExpired) {
		if err := s.renew(ctx); err != nil {
			return err
		}
		err = s.client.PTZ(ctx, cmd)
	}
	if err != nil {
		return s.fail("ptz "+string(cmd.Op), err)
	}
	return nil
}

// Close logs out if connected. The session may be reconnected afterwards.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return nil
	}
	s.state = Disconnected
	s.mu.Unlock()

	if err := s.client.Logout(ctx); err != nil {
		return fmt.Errorf("camera logout: %w", err)
	}
	s.logger.Info("Camera session closed")
	return nil
}

// renew logs in again after the client reported a lapsed login. The camera
// never saw the rejected call, so the caller may issue it once more.
func (s *Session) renew(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Connected {
		s.state = Disconnected
	}
	s.mu.Unlock()
	s.logger.Info("Camera login expired, logging in again")
	return s.Connect(ctx)
}

// fail marks the session disconnected when err says the login is gone or the
// camera went away, so the next call logs in again.
func (s *Session) fail(action string, err error) error {
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrUnreachable) {
		s.mu.Lock()
		if s.state == Connected {
			s.state = Disconnected
		}
		s.mu.Unlock()
		s.logger.Warning("Camera %s failed, session dropped: %v", action, err)
		return fmt.Errorf("%s: %w: %w", action, ErrCameraUnavailable, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}
