//go:build windows

package supervisor

import (
	"os"
)

// terminate ends the process; Windows has no catchable termination signal.
func terminate(p *os.Process) error {
	return p.Kill()
}
