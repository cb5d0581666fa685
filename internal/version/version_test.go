package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuild(t *testing.T, version, commit string, info *debug.BuildInfo) {
	t.Helper()
	oldVersion, oldCommit, oldRead := Version, GitCommit, readBuildInfo
	t.Cleanup(func() { Version, GitCommit, readBuildInfo = oldVersion, oldCommit, oldRead })

	Version, GitCommit = version, commit
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
}

func TestShortVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		info    *debug.BuildInfo
		want    string
	}{
		{"release with commit", "v1.2.0", "abcdef123456", nil, "v1.2.0 (abcdef1)"},
		{"dev with commit", "dev", "abcdef123456", nil, "dev-abcdef1"},
		{"dev without anything", "dev", "unknown", nil, "dev"},
		{
			name:    "go install",
			version: "dev",
			commit:  "unknown",
			info:    &debug.BuildInfo{Main: debug.Module{Version: "v0.3.1"}},
			want:    "v0.3.1",
		},
		{
			name:    "vcs stamped",
			version: "dev",
			commit:  "unknown",
			info: &debug.BuildInfo{
				Main:     debug.Module{Version: "(devel)"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789"}},
			},
			want: "dev-0123456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuild(t, tt.version, tt.commit, tt.info)
			assert.Equal(t, tt.want, GetShortVersion())
		})
	}
}

func TestDetailedVersion(t *testing.T) {
	withBuild(t, "v1.0.0", "abcdef123456", &debug.BuildInfo{
		Settings: []debug.BuildSetting{{Key: "vcs.modified", Value: "true"}},
	})

	out := GetDetailedVersion()
	assert.Contains(t, out, "Version: v1.0.0")
	assert.Contains(t, out, "Commit: abcdef123456 (dirty)")
	assert.Contains(t, out, "Go: ")
	assert.True(t, IsRelease())
	assert.True(t, GetBuildInfo().Release)
}
