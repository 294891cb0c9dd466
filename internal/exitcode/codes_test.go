package exitcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrBusy, "capture already running")
	if err.Code != ErrBusy {
		t.Errorf("Code = %d, want %d", err.Code, ErrBusy)
	}
	if err.Message != "capture already running" {
		t.Errorf("Message = %q, want %q", err.Message, "capture already running")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrNetwork, "contacting control server", cause)

	if err.Code != ErrNetwork {
		t.Errorf("Code = %d, want %d", err.Code, ErrNetwork)
	}
	if !errors.Is(err, cause) {
		t.Error("Wrap should preserve cause for errors.Is")
	}
	if got, want := err.Error(), "contacting control server: connection refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, Success},
		{"coded error", CredentialNotFound("auth-3.json"), ErrCredentialNotFound},
		{"wrapped coded", fmt.Errorf("relogin: %w", DriverNotFound("/opt/chrome")), ErrDriverNotFound},
		{"plain error", errors.New("plain"), ErrGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		wantCode int
		wantMsg  string
	}{
		{"CredentialNotFound", CredentialNotFound("configs/auth/auth-3.json"), ErrCredentialNotFound, "credential file not found: configs/auth/auth-3.json"},
		{"DriverNotFound", DriverNotFound("chromium-linux/chrome"), ErrDriverNotFound, "browser executable not found: chromium-linux/chrome"},
		{"Newf", Newf(ErrUsage, "invalid account index: %q", "abc"), ErrUsage, `invalid account index: "abc"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", tt.err.Code, tt.wantCode)
			}
			if tt.err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.wantMsg)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("start: %w", New(ErrBusy, "busy"))
	if !Is(err, ErrBusy) {
		t.Error("Is should work with wrapped errors")
	}
	if Is(err, ErrConflict) {
		t.Error("Is should return false for non-matching code")
	}
}
