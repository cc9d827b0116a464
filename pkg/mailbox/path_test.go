package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quackhq/quack/pkg/models"
)

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "claude/web", NormalizePath("/Claude/Web"))
	assert.Equal(t, "replit/main", NormalizePath("///replit/main"))
	assert.Equal(t, "cursor", NormalizePath("  /Cursor"))
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		hasProject bool
		wantErr    bool
	}{
		{"two segments", "replit/main", false, false},
		{"three segments", "replit/main/api", false, false},
		{"four segments", "a/b/c/d", false, true},
		{"four segments with project", "a/b/c/d", true, true},
		{"single segment without project", "claude", false, true},
		{"single segment with project", "claude", true, false},
		{"empty", "", true, true},
		{"empty segment", "claude//web", false, true},
		{"trailing empty segment", "claude/web/", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path, tt.hasProject)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, models.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRootPlatform(t *testing.T) {
	assert.Equal(t, "claude", RootPlatform("claude/web"))
	assert.Equal(t, "claude", RootPlatform("/Claude"))
	assert.Equal(t, "replit", RootPlatform("replit/main/api"))
}
