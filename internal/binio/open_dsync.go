//go:build linux || darwin

package binio

import "syscall"

const dataSyncFlag = syscall.O_DSYNC
