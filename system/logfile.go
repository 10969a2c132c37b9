package system

import (
	"errors"
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileOptions configures a rotating log file
type LogFileOptions struct {
	// File is the log file path. Rotated files are kept next to it.
	File string
	// MaxSizeMB is the size a file may reach before it is rotated
	MaxSizeMB int
	// MaxBackups is how many rotated files are kept
	MaxBackups int
	// MaxAgeDays removes rotated files older than this, 0 keeps them
	MaxAgeDays int
	// Stdout also writes log output to stdout
	Stdout bool
}

// EnableLogFile sends the standard logger output to a rotating log file.
// The returned closer closes the current file.
func EnableLogFile(o LogFileOptions) (io.Closer, error) {
	if o.File == "" {
		return nil, errors.New("log file not set")
	}

	if o.MaxSizeMB <= 0 {
		o.MaxSizeMB = 10
	}

	lj := &lumberjack.Logger{
		Filename:   o.File,
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
		Compress:   true,
	}

	var w io.Writer = lj
	if o.Stdout {
		w = io.MultiWriter(os.Stdout, lj)
	}

	log.SetOutput(w)

	return lj, nil
}
