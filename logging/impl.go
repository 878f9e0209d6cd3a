package logging

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// callerSkip counts the frames from runtime.Caller in callerOf back to the line that logged:
// callerOf, emit and the level method.
const callerSkip = 3

var errUnpairedKey = errors.New("unpaired log key")

// fanoutLogger writes every enabled entry to all of its appenders.
type fanoutLogger struct {
	name      string
	level     AtomicLevel
	inUTC     bool
	appenders []Appender
}

func newFanoutLogger(name string, level Level, inUTC bool, appenders ...Appender) *fanoutLogger {
	return &fanoutLogger{name: name, level: NewAtomicLevelAt(level), inUTC: inUTC, appenders: appenders}
}

func (l *fanoutLogger) AddAppender(appender Appender) {
	l.appenders = append(l.appenders, appender)
}

func (l *fanoutLogger) SetLevel(level Level) {
	l.level.Set(level)
}

func (l *fanoutLogger) GetLevel() Level {
	return l.level.Get()
}

func (l *fanoutLogger) Sublogger(subname string) Logger {
	name := subname
	if l.name != "" {
		name = l.name + "." + subname
	}
	return newFanoutLogger(name, l.level.Get(), l.inUTC, l.appenders...)
}

func (l *fanoutLogger) Sync() error {
	var err error
	for _, appender := range l.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

func (l *fanoutLogger) enabled(level Level) bool {
	return level >= l.level.Get()
}

// emit must be called directly from a level method so callerSkip stays correct.
func (l *fanoutLogger) emit(level Level, msg string, keysAndValues []interface{}) {
	entry := zapcore.Entry{
		LoggerName: l.name,
		Time:       time.Now(),
		Level:      level.AsZap(),
		Message:    msg,
		Caller:     callerOf(callerSkip),
	}
	if l.inUTC {
		entry.Time = entry.Time.UTC()
	}
	fields := keyValueFields(keysAndValues)

	var err error
	for _, appender := range l.appenders {
		err = multierr.Append(err, appender.Write(entry, fields))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

// keyValueFields pairs alternating keys and values into zap fields. A trailing key without a
// value is kept with an error as its value.
func keyValueFields(keysAndValues []interface{}) []zapcore.Field {
	return lo.Map(lo.Chunk(keysAndValues, 2), func(pair []interface{}, _ int) zapcore.Field {
		key := fmt.Sprint(pair[0])
		if len(pair) < 2 {
			return zap.Any(key, errUnpairedKey)
		}
		return zap.Any(key, pair[1])
	})
}

func callerOf(skip int) zapcore.EntryCaller {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return zapcore.EntryCaller{}
	}
	caller := zapcore.EntryCaller{Defined: true, PC: pc, File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}

func (l *fanoutLogger) Debug(args ...interface{}) {
	if l.enabled(DEBUG) {
		l.emit(DEBUG, fmt.Sprint(args...), nil)
	}
}

func (l *fanoutLogger) Debugw(msg string, keysAndValues ...interface{}) {
	if l.enabled(DEBUG) {
		l.emit(DEBUG, msg, keysAndValues)
	}
}

func (l *fanoutLogger) Info(args ...interface{}) {
	if l.enabled(INFO) {
		l.emit(INFO, fmt.Sprint(args...), nil)
	}
}

func (l *fanoutLogger) Infof(template string, args ...interface{}) {
	if l.enabled(INFO) {
		l.emit(INFO, fmt.Sprintf(template, args...), nil)
	}
}

func (l *fanoutLogger) Infow(msg string, keysAndValues ...interface{}) {
	if l.enabled(INFO) {
		l.emit(INFO, msg, keysAndValues)
	}
}

func (l *fanoutLogger) Warnw(msg string, keysAndValues ...interface{}) {
	if l.enabled(WARN) {
		l.emit(WARN, msg, keysAndValues)
	}
}

func (l *fanoutLogger) Errorf(template string, args ...interface{}) {
	if l.enabled(ERROR) {
		l.emit(ERROR, fmt.Sprintf(template, args...), nil)
	}
}

func (l *fanoutLogger) Errorw(msg string, keysAndValues ...interface{}) {
	if l.enabled(ERROR) {
		l.emit(ERROR, msg, keysAndValues)
	}
}
