//go:build !linux

package master

import "syscall"

// procAttrs has no parent-death signal outside Linux; children notice a dead
// supervisor when their channel closes
func procAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}
