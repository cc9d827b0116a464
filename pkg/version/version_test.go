package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommit(t *testing.T) {
	assert.NotEmpty(t, Commit)
	assert.LessOrEqual(t, len(Commit), 8)
}

func TestFull(t *testing.T) {
	assert.True(t, strings.HasPrefix(Full(), AppName+"/"))
}
