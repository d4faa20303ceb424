package buildscript

import (
	"testing"

	"github.com/mongodb-labs/bulkmodify/common/testtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/mod/semver"
)

func TestParseGoVersion(t *testing.T) {
	testtype.SkipUnlessTestType(t, testtype.UnitTestType)

	v, err := ParseGoVersion("go version go1.23.8 linux/amd64")
	require.NoError(t, err)
	assert.Equal(t, "v1.23.8", v)
	assert.GreaterOrEqual(t, semver.Compare(v, minimumGoVersion), 0)

	v, err = ParseGoVersion("go version go1.20 darwin/arm64")
	require.NoError(t, err)
	assert.Less(t, semver.Compare(v, minimumGoVersion), 0)

	_, err = ParseGoVersion("command not found")
	require.Error(t, err)
}
