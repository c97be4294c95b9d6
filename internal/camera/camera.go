package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCameraUnavailable is returned when the session is down and cannot be re-established.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrUnauthorized is returned by a Client when the camera rejects the credentials or token.
	ErrUnauthorized = errors.New("camera rejected authentication")
	// ErrSessionExpired is returned by a Client when its login lapsed locally
	// and the request was never sent.
	ErrSessionExpired = errors.New("camera session expired")
	// ErrUnreachable is returned by a Client when the camera cannot be reached at all.
	ErrUnreachable = errors.New("camera unreachable")
	// ErrInvalidCommand is returned for unknown operations or out-of-range speeds.
	ErrInvalidCommand = errors.New("invalid ptz command")
)

// Operation is a PTZ motion primitive.
type Operation string

const (
	Up      Operation = "Up"
	Down    Operation = "Down"
	Left    Operation = "Left"
	Right   Operation = "Right"
	ZoomIn  Operation = "ZoomIn"
	ZoomOut Operation = "ZoomOut"
	Stop    Operation = "Stop"
)

const (
	MinSpeed     = 1
	MaxSpeed     = 64
	DefaultSpeed = 20
)

var operations = []Operation{Up, Down, Left, Right, ZoomIn, ZoomOut, Stop}

// Operations lists every supported operation.
func Operations() []Operation {
	out := make([]Operation, len(operations))
	copy(out, operations)
	return out
}

// ParseOperation matches s against the known operations, ignoring case.
func ParseOperation(s string) (Operation, error) {
	s = strings.TrimSpace(s)
	for _, op := range operations {
		if strings.EqualFold(s, string(op)) {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: unknown operation %q", ErrInvalidCommand, s)
}

// Continuous reports whether the operation keeps running until Stop.
func (o Operation) Continuous() bool {
	return o != Stop
}

// PTZCommand is a single motion command addressed to a camera channel.
type PTZCommand struct {
	Op      Operation `json:"op"`
	Speed   int       `json:"speed"`
	Channel int       `json:"channel"`
}

// Validate checks the operation and, for continuous operations, the speed range.
func (c PTZCommand) Validate() error {
	if _, err := ParseOperation(string(c.Op)); err != nil {
		return err
	}
	if c.Channel < 0 {
		return fmt.Errorf("%w: negative channel %d", ErrInvalidCommand, c.Channel)
	}
	if c.Op.Continuous() && (c.Speed < MinSpeed || c.Speed > MaxSpeed) {
		return fmt.Errorf("%w: speed %d outside %d..%d", ErrInvalidCommand, c.Speed, MinSpeed, MaxSpeed)
	}
	return nil
}

func (c PTZCommand) String() string {
	return fmt.Sprintf("%s@%d ch%d", c.Op, c.Speed, c.Channel)
}

// Client is the wire-level access to a camera. Implementations return errors
// wrapping ErrUnauthorized when the camera wants a fresh login,
// ErrSessionExpired when they know the login lapsed without asking the
// camera, and ErrUnreachable on transport failures.
type Client interface {
	Login(ctx context.Context) error
	Snapshot(ctx context.Context, channel int) ([]byte, error)
	PTZ(ctx context.Context, cmd PTZCommand) error
	Logout(ctx context.Context) error
}
