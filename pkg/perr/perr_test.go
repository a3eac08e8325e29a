package perr

import (
	"errors"
	"os"
	"testing"
)

func TestFromOS(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"not exist", os.ErrNotExist, KindNotFound},
		{"permission", os.ErrPermission, KindPermissionDenied},
		{"closed", os.ErrClosed, KindBrokenPipe},
		{"other", errors.New("boom"), KindIo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromOS(tt.err)
			if tt.err == nil {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if got.Kind != tt.want {
				t.Fatalf("kind = %v, want %v", got.Kind, tt.want)
			}
		})
	}
}

func TestFromOSPreservesExistingKind(t *testing.T) {
	original := Unsupported("resize on non-pty process")
	got := FromOS(original)
	if got != original {
		t.Fatalf("expected FromOS to pass through an existing *Error unchanged")
	}
}

func TestErrorString(t *testing.T) {
	err := New(KindInvalidInput, "bad depth %d", -1)
	if err.Error() != "invalid_input: bad depth -1" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}
