package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const logTimeFormat = "15:04:05"

// InitLogger builds the process logger from [logging]. logName is the file
// written under the log directory when "file" is among the outputs.
func InitLogger(config *Config, logName string) arbor.ILogger {
	logger := arbor.NewLogger()
	text := config.Logging.Format != "json"

	var toFile, toConsole bool
	for _, output := range config.Logging.Output {
		switch output {
		case "file":
			toFile = true
		case "stdout", "console":
			toConsole = true
		}
	}

	if toFile {
		if dir, err := resolveLogDir(config.Logging.Dir); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
			toConsole = true
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   filepath.Join(dir, logName),
				TimeFormat: logTimeFormat,
				MaxSize:    100 * 1024 * 1024,
				MaxBackups: 3,
				TextOutput: text,
			})
		}
	}

	if toConsole {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: logTimeFormat,
			TextOutput: text,
		})
	}

	return logger.WithLevelFromString(config.Logging.Level)
}

// resolveLogDir returns dir, or logs/ beside the executable when dir is
// empty, creating it if needed.
func resolveLogDir(dir string) (string, error) {
	if dir == "" {
		execPath, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("failed to locate executable: %w", err)
		}
		dir = filepath.Join(filepath.Dir(execPath), "logs")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	return dir, nil
}
