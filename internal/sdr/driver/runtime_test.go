package driver

import (
	"errors"
	"testing"
)

func TestFindRuntime_NotFound(t *testing.T) {
	_, err := FindRuntime("definitely-not-a-sweep-utility-9f2c")
	if err == nil {
		t.Fatal("expected error for a missing runtime")
	}

	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuntimeError, got %T", err)
	}
	if re.Runtime != "definitely-not-a-sweep-utility-9f2c" {
		t.Errorf("unexpected runtime name %q", re.Runtime)
	}
}
