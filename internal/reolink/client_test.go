package reolink

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"dogfinder/internal/camera"
	"dogfinder/internal/logger"

	"github.com/goccy/go-json"
)

var jpegFrame = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0xFF, 0xD9}

// fakeCamera emulates the subset of the CGI API the client uses.
type fakeCamera struct {
	mu       sync.Mutex
	token    string
	lease    int
	logins   int
	ptz      []ptzParam
	snapRS   []string
	rejectAt string
}

func (f *fakeCamera) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiPath {
			http.NotFound(w, r)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()

		cmd := r.URL.Query().Get("cmd")
		if cmd != "Login" && (r.URL.Query().Get("token") != f.token || f.rejectAt == cmd) {
			writeJSON(w, `[{"cmd":"`+cmd+`","code":1,"error":{"detail":"please login first","rspCode":-6}}]`)
			return
		}

		switch cmd {
		case "Login":
			var reqs []struct {
				Param loginParam `json:"param"`
			}
			decodeBody(t, r, &reqs)
			if reqs[0].Param.User.UserName != "admin" || reqs[0].Param.User.Password != "secret" {
				writeJSON(w, `[{"cmd":"Login","code":1,"error":{"detail":"login failed","rspCode":-7}}]`)
				return
			}
			f.logins++
			f.token = "tok" + string(rune('0'+f.logins))
			lease := f.lease
			if lease == 0 {
				lease = 3600
			}
			body, _ := json.Marshal([]map[string]any{{
				"cmd":  "Login",
				"code": 0,
				"value": map[string]any{
					"Token": map[string]any{"leaseTime": lease, "name": f.token},
				},
			}})
			writeJSON(w, string(body))
		case "Snap":
			if r.Method != http.MethodGet {
				t.Errorf("Snap must be a GET, got %s", r.Method)
			}
			f.snapRS = append(f.snapRS, r.URL.Query().Get("rs"))
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(jpegFrame)
		case "PtzCtrl":
			var reqs []struct {
				Cmd   string   `json:"cmd"`
				Param ptzParam `json:"param"`
			}
			decodeBody(t, r, &reqs)
			f.ptz = append(f.ptz, reqs[0].Param)
			writeJSON(w, `[{"cmd":"PtzCtrl","code":0,"value":{"rspCode":200}}]`)
		case "Logout":
			f.token = ""
			writeJSON(w, `[{"cmd":"Logout","code":0,"value":{"rspCode":200}}]`)
		default:
			writeJSON(w, `[{"cmd":"`+cmd+`","code":1,"error":{"detail":"not support","rspCode":-9}}]`)
		}
	})
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, body)
}

func decodeBody(t *testing.T, r *http.Request, v any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		t.Errorf("Failed to decode request body: %v", err)
	}
}

func newTestClient(t *testing.T, cam *fakeCamera, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(cam.handler(t))
	t.Cleanup(server.Close)
	return New(server.URL, "admin", "secret", 5*time.Second, opts...)
}

func TestClient_LoginAndSnapshot(t *testing.T) {
	cam := &fakeCamera{}
	client := newTestClient(t, cam)
	ctx := context.Background()

	if err := client.Login(ctx); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	data, err := client.Snapshot(ctx, 0)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if string(data) != string(jpegFrame) {
		t.Errorf("Unexpected frame: %x", data)
	}

	if _, err := client.Snapshot(ctx, 0); err != nil {
		t.Fatalf("Second snapshot failed: %v", err)
	}
	if len(cam.snapRS) != 2 || cam.snapRS[0] == "" || cam.snapRS[0] == cam.snapRS[1] {
		t.Errorf("Expected a fresh random rs per snapshot, got %v", cam.snapRS)
	}
}

func TestClient_BadCredentials(t *testing.T) {
	cam := &fakeCamera{}
	server := httptest.NewServer(cam.handler(t))
	defer server.Close()

	client := New(server.URL, "admin", "wrong", time.Second)
	err := client.Login(context.Background())
	if !errors.Is(err, camera.ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestClient_SnapshotWithoutLogin(t *testing.T) {
	client := newTestClient(t, &fakeCamera{})

	_, err := client.Snapshot(context.Background(), 0)
	if !errors.Is(err, camera.ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestClient_RejectedTokenIsUnauthorized(t *testing.T) {
	cam := &fakeCamera{}
	client := newTestClient(t, cam)
	ctx := context.Background()

	if err := client.Login(ctx); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	cam.mu.Lock()
	cam.rejectAt = "Snap"
	cam.mu.Unlock()

	_, err := client.Snapshot(ctx, 0)
	if !errors.Is(err, camera.ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized for rspCode -6, got %v", err)
	}
}

func TestClient_LeaseExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cam := &fakeCamera{lease: 3600}
	client := newTestClient(t, cam, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if err := client.Login(ctx); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := client.Snapshot(ctx, 0); err != nil {
		t.Fatalf("Snapshot within lease failed: %v", err)
	}

	now = now.Add(time.Hour)
	_, err := client.Snapshot(ctx, 0)
	if !errors.Is(err, camera.ErrSessionExpired) {
		t.Fatalf("Expected ErrSessionExpired after lease, got %v", err)
	}
	if errors.Is(err, camera.ErrUnauthorized) {
		t.Errorf("Lapsed lease is not a camera rejection: %v", err)
	}
	if len(cam.snapRS) != 1 {
		t.Errorf("Expired lease must not hit the camera, got %d snaps", len(cam.snapRS))
	}
}

func TestSession_LeaseExpiryLogsInAgain(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cam := &fakeCamera{lease: 3600}
	client := newTestClient(t, cam, WithClock(func() time.Time { return now }))
	session := camera.NewSession(client, 0, logger.Nop())
	ctx := context.Background()

	if _, err := session.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	now = now.Add(time.Hour)
	data, err := session.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot after lease expiry failed: %v", err)
	}
	if string(data) != string(jpegFrame) {
		t.Errorf("Unexpected frame: %x", data)
	}
	if cam.logins != 2 {
		t.Errorf("Expected 2 logins, got %d", cam.logins)
	}
	if session.State() != camera.Connected {
		t.Errorf("Expected connected session, got %s", session.State())
	}

	now = now.Add(time.Hour)
	if err := session.SendPTZ(ctx, camera.PTZCommand{Op: camera.Stop}); err != nil {
		t.Fatalf("SendPTZ after lease expiry failed: %v", err)
	}
	if cam.logins != 3 || len(cam.ptz) != 1 {
		t.Errorf("Expected 3 logins and 1 ptz command, got %d and %d", cam.logins, len(cam.ptz))
	}
}

func TestSession_RejectedTokenStillFails(t *testing.T) {
	cam := &fakeCamera{}
	client := newTestClient(t, cam)
	session := camera.NewSession(client, 0, logger.Nop())
	ctx := context.Background()

	if err := session.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	cam.mu.Lock()
	cam.rejectAt = "Snap"
	cam.mu.Unlock()

	_, err := session.Snapshot(ctx)
	if !errors.Is(err, camera.ErrCameraUnavailable) {
		t.Fatalf("Expected ErrCameraUnavailable for rspCode -6, got %v", err)
	}
	if session.State() != camera.Disconnected {
		t.Errorf("Expected disconnected session, got %s", session.State())
	}
	if cam.logins != 1 {
		t.Errorf("Expected no login inside the failing call, got %d", cam.logins)
	}
}

func TestClient_PTZ(t *testing.T) {
	cam := &fakeCamera{}
	client := newTestClient(t, cam)
	ctx := context.Background()

	if err := client.Login(ctx); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	commands := []camera.PTZCommand{
		{Op: camera.Left, Speed: 30, Channel: 0},
		{Op: camera.ZoomIn, Speed: 10, Channel: 1},
		{Op: camera.ZoomOut, Speed: 5, Channel: 0},
		{Op: camera.Stop, Speed: 20, Channel: 0},
	}
	for _, cmd := range commands {
		if err := client.PTZ(ctx, cmd); err != nil {
			t.Fatalf("PTZ %v failed: %v", cmd, err)
		}
	}

	expected := []ptzParam{
		{Channel: 0, Op: "Left", Speed: 30},
		{Channel: 1, Op: "ZoomInc", Speed: 10},
		{Channel: 0, Op: "ZoomDec", Speed: 5},
		{Channel: 0, Op: "Stop"},
	}
	if len(cam.ptz) != len(expected) {
		t.Fatalf("Expected %d commands, got %v", len(expected), cam.ptz)
	}
	for i := range expected {
		if cam.ptz[i] != expected[i] {
			t.Errorf("Command %d: expected %+v, got %+v", i, expected[i], cam.ptz[i])
		}
	}
}

func TestClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := New(url, "admin", "secret", time.Second)
	err := client.Login(context.Background())
	if !errors.Is(err, camera.ErrUnreachable) {
		t.Fatalf("Expected ErrUnreachable, got %v", err)
	}
}

func TestClient_Logout(t *testing.T) {
	cam := &fakeCamera{}
	client := newTestClient(t, cam)
	ctx := context.Background()

	if err := client.Logout(ctx); err != nil {
		t.Fatalf("Logout without token should be a no-op, got %v", err)
	}
	if err := client.Login(ctx); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := client.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := client.Snapshot(ctx, 0); !errors.Is(err, camera.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized after logout, got %v", err)
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		host     string
		https    bool
		expected string
	}{
		{"192.168.1.50", false, "http://192.168.1.50"},
		{"cam.local", true, "https://cam.local"},
		{"http://10.0.0.2/", true, "http://10.0.0.2"},
	}
	for _, tt := range tests {
		if got := BaseURL(tt.host, tt.https); got != tt.expected {
			t.Errorf("BaseURL(%q, %v) = %q, want %q", tt.host, tt.https, got, tt.expected)
		}
	}
}
