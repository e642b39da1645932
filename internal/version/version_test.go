package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func stamp(t *testing.T, version, commit, date string) {
	t.Helper()
	saved := [3]string{Version, Commit, Date}
	t.Cleanup(func() { Version, Commit, Date = saved[0], saved[1], saved[2] })
	Version, Commit, Date = version, commit, date
}

func TestStringUsesLinkerStamp(t *testing.T) {
	stamp(t, "0.4.0", "9f2c1e7", "2026-09-30")

	require.Equal(t, "murmur 0.4.0 (commit=9f2c1e7, date=2026-09-30, go="+runtime.Version()+")", String())
}

func TestStringFallsBackToBuildInfo(t *testing.T) {
	stamp(t, "dev", "none", "unknown")

	got := String()
	require.Regexp(t, `^murmur dev \(commit=[^,]+, date=[^,]+, go=go[^)]+\)$`, got)
}

func TestFromBuildInfoKeepsExplicitDate(t *testing.T) {
	commit, date := fromBuildInfo("none", "2026-01-02")
	require.NotEmpty(t, commit)
	require.Equal(t, "2026-01-02", date)
}
