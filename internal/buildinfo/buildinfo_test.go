package buildinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextAccessors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
		commit    string
	}{
		{"nil context", nil, UnknownValue, UnknownValue, UnknownValue},
		{"populated", NewContext("1.2.0", "2026-10-01T12:00:00Z", "abc123"), "1.2.0", "2026-10-01T12:00:00Z", "abc123"},
		{"pre-release", NewContext("1.3.0-rc.1", "", "def456"), "1.3.0-rc.1", UnknownValue, "def456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.Version())
			assert.Equal(t, tt.buildDate, tt.ctx.BuildDate())
			assert.Equal(t, tt.commit, tt.ctx.Commit())
		})
	}
}

func TestContextString(t *testing.T) {
	t.Parallel()

	s := NewContext("1.0.0", "today", "cafe").String()
	assert.Contains(t, s, "geodetect 1.0.0")
	assert.Contains(t, s, "commit cafe")
	assert.Contains(t, s, runtime.GOOS)
}
