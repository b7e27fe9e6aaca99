package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	info := Info{CommitHash: "0123456789abcdef", BuildTime: "2024-03-14", Version: "1.2.0"}
	assert.Equal(t, "0123456", info.Short())
	assert.Equal(t, "termforge 1.2.0 (commit 0123456, built 2024-03-14)", info.String())
	assert.Equal(t, "termforge 1.2.0 (0123456)", info.Generator())

	assert.Equal(t, "dev", Info{CommitHash: "dev"}.Short())
}

func TestGet(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
	assert.Equal(t, Version, info.Version)
}
