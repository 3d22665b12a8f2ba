//go:build windows

package sweep

import "os"

// Windows has no SIGTERM; the grace period is skipped
func terminate(p *os.Process) error {
	return p.Kill()
}

func exitSignal(*os.ProcessState) string {
	return ""
}
