package main

import (
	"strings"
	"sync"
)

// logWriter forwards complete log lines to the dashboard. Lines are dropped while the
// dashboard is not keeping up.
type logWriter struct {
	lines   chan<- string
	mutex   sync.Mutex
	partial string
}

func (w *logWriter) Write(data []byte) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	text := w.partial + string(data)
	parts := strings.Split(text, "\n")
	w.partial = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		select {
		case w.lines <- line:
		default:
		}
	}
	return len(data), nil
}
