package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_FollowsSemverOrDev(t *testing.T) {
	// Given: the compiled-in version

	// Then: it is "dev" or semver
	if Version == "dev" {
		return
	}
	semver := regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	require.True(t, semver.MatchString(Version), "got %s", Version)
}

func TestString_ContainsBuildInfo(t *testing.T) {
	str := String()

	assert.Contains(t, str, "amanrag "+Version)
	assert.Contains(t, str, "commit: "+Commit)
	assert.Contains(t, str, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestShort_ReturnsVersion(t *testing.T) {
	assert.Equal(t, Version, Short())
}

func TestGetInfo_IsJSONSerializable(t *testing.T) {
	// Given: the build info
	info := GetInfo()
	assert.Equal(t, runtime.Version(), info.GoVersion)

	// When: serialized
	data, err := json.Marshal(info)
	require.NoError(t, err)

	// Then: every field is present under its snake_case key
	var parsed map[string]string
	require.NoError(t, json.Unmarshal(data, &parsed))
	for _, key := range []string{"name", "version", "commit", "date", "go_version", "os", "arch"} {
		assert.Contains(t, parsed, key)
	}
	assert.Equal(t, Name, parsed["name"])
}
