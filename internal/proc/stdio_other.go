//go:build !unix

package proc

import "os"

// TakeStdout returns the protocol stream and points os.Stdout at stderr.
// Only later reads of os.Stdout are redirected on this platform.
func TakeStdout() (*os.File, error) {
	protocol := os.Stdout
	os.Stdout = os.Stderr
	return protocol, nil
}
