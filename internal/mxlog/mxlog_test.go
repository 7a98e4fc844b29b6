package mxlog

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newCapturing(level int) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Logger{level: level, stdlog: log.New(&buf, "", 0)}, &buf
}

func TestVerbosefGatesOnLevel(t *testing.T) {
	l, buf := newCapturing(2)

	l.Verbosef(3, "dropped")
	assert.Empty(t, buf.String())

	l.Verbosef(1, "kept %d", 7)
	assert.True(t, strings.Contains(buf.String(), "kept 7"))
}

func TestInfofAlwaysLogs(t *testing.T) {
	l, buf := newCapturing(0)
	l.Infof("render done: %d bytes", 512)
	assert.True(t, strings.Contains(buf.String(), "render done: 512 bytes"))
}

func TestNilLoggerIsSilentNotPanicking(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Verbosef(0, "x")
		l.Infof("y")
	})
}
