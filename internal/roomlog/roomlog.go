// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

// roomlog extends Go's logging functionality to allow for multiple
// named loggers, each gated by its own level. Call AddLogger() to set
// up each sink, then use the package-level logging functions to send
// a message to every registered logger that passes its level filter.
package roomlog

import (
	"bufio"
	golog "log"
	"io"
	"strings"
	"sync"
)

var (
	loggers = make(map[string]*roomlogger)
	logLock sync.RWMutex
)

type roomlogger struct {
	*golog.Logger
	level Level
}

func (l *roomlogger) log(level Level, name, format string, arg ...interface{}) {
	if name != "" {
		l.Printf("["+level.String()+"] "+name+": "+format, arg...)
		return
	}
	l.Printf("["+level.String()+"] "+format, arg...)
}

// AddLogger registers a named sink that logs only events at level or
// higher. output is typically os.Stderr or an opened file.
func AddLogger(name string, output io.Writer, level Level) {
	logLock.Lock()
	defer logLock.Unlock()

	loggers[name] = &roomlogger{golog.New(output, "", golog.LstdFlags), level}
}

// DelLogger removes a named logger added with AddLogger.
func DelLogger(name string) {
	logLock.Lock()
	defer logLock.Unlock()

	delete(loggers, name)
}

// SetLevel changes the level of a named logger.
func SetLevel(name string, level Level) bool {
	logLock.Lock()
	defer logLock.Unlock()

	if loggers[name] == nil {
		return false
	}
	loggers[name].level = level
	return true
}

func dispatch(level Level, name, format string, arg ...interface{}) {
	logLock.RLock()
	defer logLock.RUnlock()

	for _, logger := range loggers {
		if logger.level <= level {
			logger.log(level, name, format, arg...)
		}
	}
}

func Debug(format string, arg ...interface{}) { dispatch(DEBUG, "", format, arg...) }
func Info(format string, arg ...interface{})  { dispatch(INFO, "", format, arg...) }
func Warn(format string, arg ...interface{})  { dispatch(WARN, "", format, arg...) }
func Error(format string, arg ...interface{}) { dispatch(ERROR, "", format, arg...) }
func Fatal(format string, arg ...interface{}) { dispatch(FATAL, "", format, arg...) }

// Named variants tag the message with the room or subsystem that produced it.
func DebugNamed(name, format string, arg ...interface{}) { dispatch(DEBUG, name, format, arg...) }
func InfoNamed(name, format string, arg ...interface{})  { dispatch(INFO, name, format, arg...) }
func WarnNamed(name, format string, arg ...interface{})  { dispatch(WARN, name, format, arg...) }
func ErrorNamed(name, format string, arg ...interface{}) { dispatch(ERROR, name, format, arg...) }

// LogAllFrom reads r line by line until EOF, relaying each non-empty
// line at DEBUG level, tagged with name, so only loggers gated at
// DEBUG receive it. Intended for a room
// child's pre-exec diagnostic pipe; call it in its own goroutine, the
// same way the teacher's LogAll relays a child's log pipe.
func LogAllFrom(name string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			dispatch(DEBUG, name, "%s", line)
		}
	}
}
