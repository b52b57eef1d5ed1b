package buildinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextGetters(t *testing.T) {
	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
	}{
		{"nil context", nil, UnknownValue, UnknownValue},
		{"empty fields", NewContext("", ""), UnknownValue, UnknownValue},
		{"release", NewContext("1.0.0", "2026-01-01"), "1.0.0", "2026-01-01"},
		{"pre-release tag", NewContext("1.0.0-beta.1", ""), "1.0.0-beta.1", UnknownValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.version, tt.ctx.GetVersion())
			assert.Equal(t, tt.buildDate, tt.ctx.GetBuildDate())
		})
	}
}

func TestContextString(t *testing.T) {
	s := NewContext("1.2.3", "2026-01-01").String()
	assert.Equal(t, "1.2.3 (built 2026-01-01, "+runtime.Version()+")", s)
}
