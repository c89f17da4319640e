package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ldflags", "2.3.1", "2.3.1"},
		{"placeholder", "dev", Number()},
		{"unset", "", Number()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.in))
		})
	}
}

func TestNumber(t *testing.T) {
	assert.NotEmpty(t, Number())
	assert.NotContains(t, Number(), "\n")
}
