package diagerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	base := New(ShapeNotFound, "shape %d not found", 7)
	wrapped := fmt.Errorf("modify: %w", base)

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"direct", base, ShapeNotFound},
		{"wrapped", wrapped, ShapeNotFound},
		{"plain", errors.New("boom"), Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("access denied")
	err := Wrap(DocumentOpenFailed, cause, "could not open %s", "a.vsdx")

	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable with errors.Is")
	}
	if got, want := err.Error(), "could not open a.vsdx: access denied"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, DocumentOpenFailed) {
		t.Error("expected Is to match DOCUMENT_OPEN_FAILED")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(FromShapeNotFound, "missing").WithDetails("from_shape_id", 3).WithDetails("to_shape_id", 4)
	if len(err.Details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(err.Details))
	}
}
