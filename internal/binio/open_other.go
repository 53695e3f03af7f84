//go:build !linux && !darwin

package binio

import "os"

// O_DSYNC is not portable; fall back to full synchronous writes.
const dataSyncFlag = os.O_SYNC
