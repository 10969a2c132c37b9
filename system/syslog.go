//go:build !windows

package system

import (
	"log"
	"log/syslog"
)

// EnableSyslog sends the standard logger output to syslog under tag
func EnableSyslog(tag string) error {
	lgr, err := syslog.New(syslog.LOG_NOTICE, tag)
	if err != nil {
		return err
	}

	log.SetOutput(lgr)
	// syslog adds its own timestamp
	log.SetFlags(0)

	return nil
}
