package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const LOG_BUFFER_SIZE = 1000

var (
	ErrLogNotInitialized = errors.New("log object is not initialized yet")
	ErrUnknownLogLevel   = errors.New("unknown log level")
)

const (
	LOG_LEVEL_ERROR = iota + 1
	LOG_LEVEL_WARN
	LOG_LEVEL_INFO
	LOG_LEVEL_DEBUG
)

type LogOptions struct {
	Folder  string
	File    string
	Level   int
	Console bool
	Rewrite bool
}

// AgentLogger hands entries to a single writer goroutine so that callers on
// the tick path never block on file I/O.
type AgentLogger struct {
	mu        sync.RWMutex
	logBuffer chan leveledEntry
	handle    *os.File
	wg        *sync.WaitGroup
	zapLogger *zap.Logger
	active    bool

	// set on children returned by Named
	parent    *AgentLogger
	component string
}

type leveledEntry struct {
	level  int
	msg    string
	fields []zap.Field
}

func (m *AgentLogger) Init(opts LogOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return nil
	}
	if opts.Level == 0 {
		opts.Level = LOG_LEVEL_INFO
	}

	var writers []zapcore.WriteSyncer
	if opts.File != "" {
		if err := CheckAndCreateLogFolder(opts.Folder); err != nil {
			return err
		}
		flags := os.O_RDWR | os.O_CREATE | os.O_APPEND
		if opts.Rewrite {
			flags = os.O_RDWR | os.O_CREATE | os.O_TRUNC
		}
		handle, err := os.OpenFile(filepath.Join(opts.Folder, opts.File), flags, 0666)
		if err != nil {
			return fmt.Errorf("error opening log file: %w", err)
		}
		m.handle = handle
		writers = append(writers, zapcore.AddSync(handle))
	}
	if opts.Console || len(writers) == 0 {
		writers = append(writers, zapcore.Lock(os.Stderr))
	}

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(config)

	cores := make([]zapcore.Core, 0, len(writers))
	for _, w := range writers {
		cores = append(cores, zapcore.NewCore(encoder, w, ZapLevel(opts.Level)))
	}
	m.zapLogger = zap.New(zapcore.NewTee(cores...))

	m.wg = new(sync.WaitGroup)
	m.logBuffer = make(chan leveledEntry, LOG_BUFFER_SIZE)
	m.wg.Add(1)
	go m.logWriter()

	m.active = true
	return nil
}

func ZapLevel(level int) zapcore.Level {
	switch level {
	case LOG_LEVEL_ERROR:
		return zapcore.ErrorLevel
	case LOG_LEVEL_WARN:
		return zapcore.WarnLevel
	case LOG_LEVEL_DEBUG:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func ParseLogLevel(name string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "error":
		return LOG_LEVEL_ERROR, nil
	case "warn", "warning":
		return LOG_LEVEL_WARN, nil
	case "info", "":
		return LOG_LEVEL_INFO, nil
	case "debug":
		return LOG_LEVEL_DEBUG, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLogLevel, name)
}

func (m *AgentLogger) logWriter() {
	defer m.wg.Done()
	for entry := range m.logBuffer {
		switch entry.level {
		case LOG_LEVEL_ERROR:
			m.zapLogger.Error(entry.msg, entry.fields...)
		case LOG_LEVEL_WARN:
			m.zapLogger.Warn(entry.msg, entry.fields...)
		case LOG_LEVEL_DEBUG:
			m.zapLogger.Debug(entry.msg, entry.fields...)
		default:
			m.zapLogger.Info(entry.msg, entry.fields...)
		}
	}
	_ = m.zapLogger.Sync()
}

// Named returns a child logger that tags entries with component. The child
// shares the parent's buffer and lifetime.
func (m *AgentLogger) Named(component string) *AgentLogger {
	if m == nil {
		return nil
	}
	root := m
	if m.parent != nil {
		root = m.parent
	}
	return &AgentLogger{parent: root, component: component}
}

// LogEvent queues an entry. Entries logged before Init or after DeInit are
// dropped with ErrLogNotInitialized. When the buffer is full the entry is
// dropped rather than stalling the caller.
func (m *AgentLogger) LogEvent(level int, msg string, fields ...zap.Field) error {
	if m == nil {
		return ErrLogNotInitialized
	}
	root := m
	if m.parent != nil {
		root = m.parent
		fields = append(fields, zap.String("component", m.component))
	}

	root.mu.RLock()
	defer root.mu.RUnlock()
	if !root.active {
		return ErrLogNotInitialized
	}

	select {
	case root.logBuffer <- leveledEntry{level: level, msg: msg, fields: fields}:
	default:
	}
	return nil
}

func (m *AgentLogger) Error(msg string, fields ...zap.Field) {
	_ = m.LogEvent(LOG_LEVEL_ERROR, msg, fields...)
}

func (m *AgentLogger) Warn(msg string, fields ...zap.Field) {
	_ = m.LogEvent(LOG_LEVEL_WARN, msg, fields...)
}

func (m *AgentLogger) Info(msg string, fields ...zap.Field) {
	_ = m.LogEvent(LOG_LEVEL_INFO, msg, fields...)
}

func (m *AgentLogger) Debug(msg string, fields ...zap.Field) {
	_ = m.LogEvent(LOG_LEVEL_DEBUG, msg, fields...)
}

func (m *AgentLogger) DeInit() {
	if m.parent != nil {
		return
	}
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	close(m.logBuffer)
	m.mu.Unlock()

	m.wg.Wait()
	if m.handle != nil {
		m.handle.Close()
	}
}

func CheckAndCreateLogFolder(folderNameWithPath string) error {
	if folderNameWithPath == "" {
		return nil
	}
	_, err := os.Stat(folderNameWithPath)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(folderNameWithPath, 0755); err != nil {
			return fmt.Errorf("failed to create log folder %q: %w", folderNameWithPath, err)
		}
	}
	return nil
}
