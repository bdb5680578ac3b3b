package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// setupLogging moves log output into a file under cacheDir so the TUI owns
// the terminal. It returns a closer for the file.
func setupLogging(cacheDir string) (io.Closer, error) {
	logDir := filepath.Join(cacheDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("termsearch-%s.log", time.Now().Format("20060102-150405"))
	logPath := filepath.Join(logDir, name)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	log.Printf("Log file: %s", logPath)
	log.SetOutput(logFile)
	return logFile, nil
}
