package infra

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessResolver_IsRunning(t *testing.T) {
	r := NewProcessResolver()

	assert.True(t, r.IsRunning(int32(os.Getpid())))

	// Pid from far beyond the default pid_max.
	assert.False(t, r.IsRunning(1<<30))
}

func TestProcessResolver_DescribeSelf(t *testing.T) {
	r := NewProcessResolver()

	name, cmdline, err := r.Describe(int32(os.Getpid()))
	require.NoError(t, err)
	assert.NotEmpty(t, name)
	assert.NotEmpty(t, cmdline)
}

func TestProcessResolver_DescribeMissing(t *testing.T) {
	r := NewProcessResolver()

	_, _, err := r.Describe(1 << 30)
	assert.Error(t, err)
}
