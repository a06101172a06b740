package utils

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	Level         string `json:"level" yaml:"level"`
	Format        string `json:"format" yaml:"format"` // json or text
	FileLocation  string `json:"file_location" yaml:"file_location"`
	MaxSize       int    `json:"max_size" yaml:"max_size"` // megabytes
	MaxBackups    int    `json:"max_backups" yaml:"max_backups"`
	MaxAge        int    `json:"max_age" yaml:"max_age"` // days
	Compress      bool   `json:"compress" yaml:"compress"`
	EnableConsole bool   `json:"enable_console" yaml:"enable_console"`
}

// NewLogger builds the application logger: JSON or text formatter, optional
// rotating file sink, and service identity fields on every entry.
func NewLogger(config LogConfig, service, version string) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(config.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(config.Format) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
			FullTimestamp:   true,
		})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "severity",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	var writers []io.Writer
	if config.FileLocation != "" {
		if err := EnsureDir(filepath.Dir(config.FileLocation)); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.FileLocation,
			MaxSize:    maxInt(1, config.MaxSize),
			MaxBackups: maxInt(0, config.MaxBackups),
			MaxAge:     maxInt(0, config.MaxAge),
			Compress:   config.Compress,
		})
	}
	if config.EnableConsole || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	logger.SetOutput(io.MultiWriter(writers...))

	logger.AddHook(&serviceHook{service: service, version: version, hostname: getHostname()})

	return logger, nil
}

type serviceHook struct {
	service  string
	version  string
	hostname string
}

func (h *serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	entry.Data["service"] = h.service
	entry.Data["version"] = h.version
	entry.Data["hostname"] = h.hostname
	return nil
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
