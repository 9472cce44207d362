//go:build linux

package master

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// procAttrs makes the kernel send SIGTERM to a child whose supervisor died,
// so a crashed master never leaves orphans behind
func procAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Pdeathsig: unix.SIGTERM,
	}
}
