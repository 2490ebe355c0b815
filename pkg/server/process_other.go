//go:build !unix

package server

// isProcessRunning cannot inspect processes here and assumes pid is alive.
func isProcessRunning(pid int) bool {
	return pid > 0
}
