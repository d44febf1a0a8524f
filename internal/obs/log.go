package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits a structured JSON log line with common HTTP fields.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

// Log emits a structured JSON line with level, message and optional fields.
// Workers and the webhook processor use this for their diagnostics.
func Log(level, msg string, fields map[string]any) {
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"msg":   msg,
	}
	for k, v := range fields {
		entry[k] = v
	}
	LogRequest(entry)
}

// Warn is shorthand for Log("warn", ...).
func Warn(msg string, fields map[string]any) { Log("warn", msg, fields) }

// Error is shorthand for Log("error", ...).
func Error(msg string, fields map[string]any) { Log("error", msg, fields) }

// Info is shorthand for Log("info", ...).
func Info(msg string, fields map[string]any) { Log("info", msg, fields) }
