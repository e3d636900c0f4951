package webrtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// LoggerFactory routes pion internal logs to zerolog
type LoggerFactory struct {
	Log zerolog.Logger
}

func (f *LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &logger{log: f.Log, prefix: "[webrtc] " + scope + ": "}
}

type logger struct {
	log    zerolog.Logger
	prefix string
}

func (l *logger) msg(e *zerolog.Event, s string) {
	e.Msg(l.prefix + s)
}

func (l *logger) Trace(msg string)                  { l.msg(l.log.Trace(), msg) }
func (l *logger) Tracef(f string, a ...interface{}) { l.msg(l.log.Trace(), fmt.Sprintf(f, a...)) }
func (l *logger) Debug(msg string)                  { l.msg(l.log.Debug(), msg) }
func (l *logger) Debugf(f string, a ...interface{}) { l.msg(l.log.Debug(), fmt.Sprintf(f, a...)) }
func (l *logger) Info(msg string)                   { l.msg(l.log.Debug(), msg) }
func (l *logger) Infof(f string, a ...interface{})  { l.msg(l.log.Debug(), fmt.Sprintf(f, a...)) }
func (l *logger) Warn(msg string)                   { l.msg(l.log.Warn(), msg) }
func (l *logger) Warnf(f string, a ...interface{})  { l.msg(l.log.Warn(), fmt.Sprintf(f, a...)) }
func (l *logger) Error(msg string)                  { l.msg(l.log.Error(), msg) }
func (l *logger) Errorf(f string, a ...interface{}) { l.msg(l.log.Error(), fmt.Sprintf(f, a...)) }
