package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	err := Newf(CodeDecodeError, "bad chunk at offset %d", 42).WithMetadata("session", "s_1")

	msg := err.Error()
	if !strings.Contains(msg, "DECODE_ERROR") {
		t.Errorf("message %q missing code", msg)
	}
	if !strings.Contains(msg, "bad chunk at offset 42") {
		t.Errorf("message %q missing formatted text", msg)
	}
	if !strings.Contains(msg, "s_1") {
		t.Errorf("message %q missing metadata", msg)
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := stderrors.New("device busy")
	err := Wrap(cause, CodeDeviceUnavailable, "cannot open microphone")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped cause not found via errors.Is")
	}
	if !IsCode(err, CodeDeviceUnavailable) {
		t.Errorf("IsCode = false, want true for %v", err)
	}
	if IsCode(cause, CodeDeviceUnavailable) {
		t.Error("plain error should not match any code")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Errorf("CodeOf(plain) = %v, want %v", got, CodeUnknown)
	}
	if got := CodeOf(New(CodeConnectionError, "dropped")); got != CodeConnectionError {
		t.Errorf("CodeOf = %v, want %v", got, CodeConnectionError)
	}
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"decode error", New(CodeDecodeError, "bad base64"), true},
		{"send error", New(CodeSendError, "queue closed"), true},
		{"device unavailable", New(CodeDeviceUnavailable, "no mic"), false},
		{"connection error", New(CodeConnectionError, "dropped"), false},
		{"plain error", stderrors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecoverable(tt.err); got != tt.want {
				t.Errorf("IsRecoverable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
