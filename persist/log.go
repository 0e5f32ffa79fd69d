package persist

import (
	"io"
	"log"
	"os"
)

// Logger wraps the standard library's log.Logger, bracketing the life of
// the underlying file with STARTUP and SHUTDOWN lines so that a log can be
// inspected after the fact to tell whether the process exited cleanly.
type Logger struct {
	*log.Logger
	file *os.File
}

// NewLogger returns a Logger that writes to w. Useful for loggers that
// should not be backed by a single file, such as one writing to os.Stdout.
func NewLogger(w io.Writer) *Logger {
	l := log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile|log.LUTC)
	logger := &Logger{Logger: l}
	logger.Println("STARTUP: Logging has started.")
	return logger
}

// NewFileLogger returns a Logger that appends to (or creates) the file at
// filename.
func NewFileLogger(filename string) (*Logger, error) {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	l := log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile|log.LUTC)
	logger := &Logger{Logger: l, file: file}
	logger.Println("STARTUP: Logging has started.")
	return logger, nil
}


// Close logs a SHUTDOWN line and closes the underlying file, if any.
func (l *Logger) Close() error {
	l.Println("SHUTDOWN: Logging has terminated.")
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
