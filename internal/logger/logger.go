package logger

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// LoggerService writes log output to a rotating file under folder_path.
// Rotation by size and retention of old files run on a cron schedule.
type LoggerService struct {
	Config        map[string]interface{}
	file          *os.File
	mu            sync.Mutex
	sched         *cron.Cron
	currentLog    string
	maxFileBytes  int64
	retentionDays int
	folderPath    string
	rotateSpec    string
	retentionSpec string
	echo          bool
}

func intOption(config map[string]interface{}, key string) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func NewLoggerService(config map[string]interface{}) *LoggerService {
	if config == nil {
		config = map[string]interface{}{}
	}
	folder, _ := config["folder_path"].(string)
	if folder == "" {
		folder = "./logs"
	}
	rotateSpec, _ := config["rotate_schedule"].(string)
	if rotateSpec == "" {
		rotateSpec = "@every 10s"
	}
	retentionSpec, _ := config["retention_schedule"].(string)
	if retentionSpec == "" {
		retentionSpec = "@daily"
	}
	echo, ok := config["stdout"].(bool)
	if !ok {
		echo = true
	}
	return &LoggerService{
		Config:        config,
		maxFileBytes:  int64(intOption(config, "max_file_mb")) * 1024 * 1024,
		retentionDays: intOption(config, "retention_days"),
		folderPath:    folder,
		rotateSpec:    rotateSpec,
		retentionSpec: retentionSpec,
		echo:          echo,
	}
}

func (l *LoggerService) Name() string {
	return "logger"
}

func (l *LoggerService) Start() error {
	l.mu.Lock()
	if err := os.MkdirAll(l.folderPath, 0755); err != nil {
		l.mu.Unlock()
		return err
	}
	logFile := l.nextLogFileName()
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	l.file = file
	l.currentLog = logFile
	l.mu.Unlock()

	if l.echo {
		Get().SetOutput(io.MultiWriter(os.Stdout, l))
	} else {
		Get().SetOutput(l)
	}
	Get().WithField("file", logFile).Info("logger started")

	l.sched = cron.New()
	if _, err := l.sched.AddFunc(l.rotateSpec, func() {
		if err := l.rotateIfNeeded(); err != nil {
			LogError("logger", "rotateIfNeeded", "rotate log file", nil, err)
		}
	}); err != nil {
		return fmt.Errorf("rotate schedule %q: %w", l.rotateSpec, err)
	}
	if _, err := l.sched.AddFunc(l.retentionSpec, l.zipAndCleanOldLogs); err != nil {
		return fmt.Errorf("retention schedule %q: %w", l.retentionSpec, err)
	}
	l.sched.Start()
	return nil
}

func (l *LoggerService) Stop() error {
	if l.sched != nil {
		<-l.sched.Stop().Done()
	}
	Get().SetOutput(os.Stdout)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Write implements io.Writer for the logrus output.
func (l *LoggerService) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return len(p), nil
	}
	return l.file.Write(p)
}

// CurrentFile is the path being written to.
func (l *LoggerService) CurrentFile() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLog
}

func (l *LoggerService) nextLogFileName() string {
	timestamp := time.Now().Format("20060102_150405.000")
	return filepath.Join(l.folderPath, fmt.Sprintf("app_%s.log", timestamp))
}

func (l *LoggerService) rotateIfNeeded() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil || l.maxFileBytes <= 0 {
		return nil
	}
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < l.maxFileBytes {
		return nil
	}
	newLog := l.nextLogFileName()
	file, err := os.OpenFile(newLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	// size exceeded, switch files
	l.file.Close()
	l.file = file
	l.currentLog = newLog
	return nil
}

func (l *LoggerService) zipAndCleanOldLogs() {
	if l.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -l.retentionDays)
	files, err := os.ReadDir(l.folderPath)
	if err != nil {
		return
	}
	current := l.CurrentFile()
	var old []string
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".log" {
			continue
		}
		fullPath := filepath.Join(l.folderPath, f.Name())
		info, err := os.Stat(fullPath)
		if err != nil || info.ModTime().After(cutoff) || fullPath == current {
			continue
		}
		old = append(old, fullPath)
	}
	if len(old) == 0 {
		return
	}

	zipName := filepath.Join(l.folderPath, fmt.Sprintf("logs_%s.zip", time.Now().Format("20060102_150405")))
	zipFile, err := os.Create(zipName)
	if err != nil {
		return
	}
	defer zipFile.Close()
	zipWriter := zip.NewWriter(zipFile)
	defer zipWriter.Close()

	for _, fullPath := range old {
		w, err := zipWriter.Create(filepath.Base(fullPath))
		if err != nil {
			continue
		}
		src, err := os.Open(fullPath)
		if err != nil {
			continue
		}
		_, copyErr := io.Copy(w, src)
		src.Close()
		if copyErr == nil {
			os.Remove(fullPath)
		}
	}
}

// LogAudit records an audit line through the shared logger.
func (l *LoggerService) LogAudit(msg string) {
	Get().WithField("audit", true).Info(msg)
}

var GlobalLogger *LoggerService

func SetGlobalLogger(l *LoggerService) {
	GlobalLogger = l
}
