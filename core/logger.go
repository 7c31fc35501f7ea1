package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// ProductionLogger is the default concrete Logger. It writes one line per
// event: JSON when running inside Kubernetes (for log aggregation), plain
// text otherwise. Level and format can be overridden via REMEDY_LOG_LEVEL
// and REMEDY_LOG_FORMAT.
//
// Thread-safe; a single instance may be shared across the engine and stores.
type ProductionLogger struct {
	serviceName string
	level       logLevel
	format      string
	output      io.Writer
	mu          sync.Mutex
}

type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
)

func parseLevel(s string) logLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return levelDebug
	case "WARN":
		return levelWarn
	case "ERROR":
		return levelError
	default:
		return levelInfo
	}
}

func (l logLevel) String() string {
	switch l {
	case levelDebug:
		return "DEBUG"
	case levelWarn:
		return "WARN"
	case levelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// NewProductionLogger creates a logger for the given service name.
// Configuration priority: environment variables, then auto-detection
// (Kubernetes means JSON), then defaults.
func NewProductionLogger(serviceName string) *ProductionLogger {
	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json"
	}
	if f := os.Getenv("REMEDY_LOG_FORMAT"); f == "json" || f == "text" {
		format = f
	}

	return &ProductionLogger{
		serviceName: serviceName,
		level:       parseLevel(os.Getenv("REMEDY_LOG_LEVEL")),
		format:      format,
		output:      os.Stdout,
	}
}

// SetOutput redirects log output. Intended for tests.
func (l *ProductionLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(levelDebug, msg, fields)
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log(levelInfo, msg, fields)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(levelWarn, msg, fields)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.log(levelError, msg, fields)
}

func (l *ProductionLogger) log(level logLevel, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		entry := make(map[string]interface{}, len(fields)+4)
		for k, v := range fields {
			entry[k] = v
		}
		entry["timestamp"] = now
		entry["level"] = level.String()
		entry["service"] = l.serviceName
		entry["message"] = msg

		data, err := json.Marshal(entry)
		if err != nil {
			// Fields contained something unmarshalable; keep the message
			fmt.Fprintf(l.output, `{"timestamp":%q,"level":%q,"service":%q,"message":%q,"marshal_error":%q}`+"\n",
				now, level.String(), l.serviceName, msg, err.Error())
			return
		}
		fmt.Fprintln(l.output, string(data))
		return
	}

	// Text format with deterministic field ordering for readability
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s: %s", now, level.String(), l.serviceName, msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	fmt.Fprintln(l.output, b.String())
}
