// Package logger holds the process-wide structured logger and the file
// service that persists its output.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logg *logrus.Logger

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetLevel(logrus.InfoLevel)
	logg.SetOutput(os.Stdout)
}

// Get returns the shared logger.
func Get() *logrus.Logger {
	return logg
}

// SetLevel parses a level name; unknown names leave the level unchanged.
func SetLevel(level string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logg.SetLevel(lvl)
	}
}

// Module returns an entry tagged with the calling component.
func Module(name string) *logrus.Entry {
	return logg.WithField("module", name)
}

func LogError(moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logg.WithFields(fields).Error(err.Error())
}

// Audit writes one audit entry if a file logger is running, else to the
// shared logger directly.
func Audit(msg string) {
	if GlobalLogger != nil {
		GlobalLogger.LogAudit(msg)
		return
	}
	logg.WithField("audit", true).Info(msg)
}
