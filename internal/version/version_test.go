package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	info := Info()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Equal(t, IsRelease(), info.Release)
	assert.Contains(t, info.String(), "fruitflow ")
	assert.Contains(t, info.String(), "Go Version:")
}

func TestBuildInfoString(t *testing.T) {
	tests := []struct {
		name     string
		info     BuildInfo
		contains []string
		excludes []string
	}{
		{
			name: "release",
			info: BuildInfo{
				Version:   "v1.2.0",
				BuildDate: "2025-03-03T12:00:00Z",
				GitCommit: "abc123def456",
				GoVersion: "go1.24.4",
			},
			contains: []string{"fruitflow v1.2.0\n", "Build Date: 2025-03-03T12:00:00Z", "Git Commit: abc123d\n", "Go Version: go1.24.4"},
			excludes: []string{"dirty"},
		},
		{
			name: "dirty dev build",
			info: BuildInfo{
				Version:   "dev",
				BuildDate: unknownValue,
				GitCommit: "abc1234-dirty",
				GoVersion: "go1.24.4",
				Dirty:     true,
			},
			contains: []string{"fruitflow dev (dirty)"},
			excludes: []string{"Build Date"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.info.String()
			for _, want := range tt.contains {
				assert.Contains(t, s, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, s, unwanted)
			}
		})
	}
}

func TestIsRelease(t *testing.T) {
	original := Version
	defer func() { Version = original }()

	tests := []struct {
		version string
		want    bool
	}{
		{"dev", false},
		{"v1.0.0", true},
		{"v1.0.0-rc.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			Version = tt.version
			assert.Equal(t, tt.want, IsRelease())
			assert.Equal(t, tt.want, Info().Release)
		})
	}
}
