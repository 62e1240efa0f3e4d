package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"
)

type LogEntry struct {
	Timestamp string      `json:"timestamp"`
	Level     string      `json:"level"`
	Service   string      `json:"service"`
	Action    string      `json:"action"`
	Message   string      `json:"message"`
	Hostname  string      `json:"hostname"`
	RequestID string      `json:"request_id"`
	Error     *ErrorEntry `json:"error,omitempty"`
}

type ErrorEntry struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack"`
}

// Logger writes one JSON object per line to stdout. Action and WithRequestID
// return derived loggers carrying the field, so handlers can set the request id
// once and services can tag each step with its own action.
type Logger struct {
	service   string
	hostname  string
	action    string
	requestID string
}

func NewLogger(service string) *Logger {
	hostname, _ := os.Hostname()
	return &Logger{
		service:  service,
		hostname: hostname,
	}
}

// Action returns a copy of the logger with the action field set.
func (l *Logger) Action(action string) *Logger {
	c := *l
	c.action = action
	return &c
}

// WithRequestID returns a copy of the logger with the request_id field set.
func (l *Logger) WithRequestID(requestID string) *Logger {
	c := *l
	c.requestID = requestID
	return &c
}

func (l *Logger) Info(message string) {
	l.log("INFO", message, nil)
}

func (l *Logger) Debug(message string) {
	l.log("DEBUG", message, nil)
}

func (l *Logger) Warn(message string) {
	l.log("WARN", message, nil)
}

func (l *Logger) Error(message string, err error) {
	entry := &ErrorEntry{}
	if err != nil {
		entry.Msg = err.Error()
		buf := make([]byte, 1024)
		n := runtime.Stack(buf, false)
		entry.Stack = string(buf[:n])
	}
	l.log("ERROR", message, entry)
}

func (l *Logger) log(level, message string, errorEntry *ErrorEntry) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Service:   l.service,
		Action:    l.action,
		Message:   message,
		Hostname:  l.hostname,
		RequestID: l.requestID,
		Error:     errorEntry,
	}

	jsonData, _ := json.Marshal(entry)
	fmt.Println(string(jsonData))
}
