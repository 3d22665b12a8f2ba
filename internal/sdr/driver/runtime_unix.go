//go:build !windows

package driver

import (
	"os/exec"
)

// FindRuntime resolves the sweep utility in PATH
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		return "", NewRuntimeError(runtime, err)
	}

	return binPath, nil
}
