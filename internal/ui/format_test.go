package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPadR(t *testing.T) {
	assert.Equal(t, "hi        ", padR("hi", 10))
	assert.Equal(t, "hello", padR("hello", 5))
	assert.Equal(t, "toolongstring", padR("toolongstring", 5))
	assert.Equal(t, "    ", padR("", 4))

	styled := padR(StyleSuccess.Render("ok"), 4)
	assert.True(t, strings.HasSuffix(styled, "  "), "escape codes do not count as width")
}

func TestTrimErr(t *testing.T) {
	assert.Equal(t, "RPC error: method not found", TrimErr("RPC error: method not found"))

	s := "some prefix: dial tcp 127.0.0.1:8545: connection refused"
	assert.True(t, strings.HasPrefix(TrimErr(s), "dial tcp"))

	long := strings.Repeat("x", 40)
	assert.Equal(t, strings.Repeat("x", 30)+"…", TrimErr(long))
}

func TestFormatGwei(t *testing.T) {
	assert.Equal(t, "0", FormatGwei(0))
	assert.Equal(t, "0.000000", FormatGwei(0.0000001))
	assert.Equal(t, "0.5000", FormatGwei(0.5))
	assert.Equal(t, "12.50", FormatGwei(12.5))
	assert.Equal(t, "150", FormatGwei(150))
}

func TestFormatLatency(t *testing.T) {
	assert.Equal(t, "42ms", FormatLatency(42*time.Millisecond+300*time.Microsecond))
}
