//go:build windows

package system

import "fmt"

// EnableSyslog fails on windows, which has no syslog daemon. Use a log file
// instead.
func EnableSyslog(tag string) error {
	return fmt.Errorf("syslog (tag %v) is not available on windows, use -logFile", tag)
}
