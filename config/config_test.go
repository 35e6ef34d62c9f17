package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/ketchgit/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	c := config.Default()
	assert.Equal(t, "refs/txn/committed", c.RefTree.CommittedRef)
	assert.Equal(t, int64(32*1024*1024), c.Core.DFS.BlockLimit)
	assert.Equal(t, int64(4096), c.Core.DFS.BlockSize)
	assert.Equal(t, 0.5, c.Core.DFS.StreamRatio)
	assert.Equal(t, "all-refs", c.Ketch.Type)
	assert.Equal(t, "fast", c.Ketch.Commit)
	assert.Equal(t, 100*time.Millisecond, c.Ketch.RetryMin)
	assert.Equal(t, 30*time.Second, c.Ketch.RetryMax)
}

func TestLoadOverridesOnlySetFields(t *testing.T) {
	ini := `
[core "dfs"]
block-size = 8192

[ketch]
type = txn-committed
`
	c, err := config.Load(strings.NewReader(ini))
	require.NoError(t, err)

	assert.Equal(t, int64(8192), c.Core.DFS.BlockSize)
	assert.Equal(t, "txn-committed", c.Ketch.Type)

	assert.Equal(t, "refs/txn/committed", c.RefTree.CommittedRef)
	assert.Equal(t, int64(32*1024*1024), c.Core.DFS.BlockLimit)
	assert.Equal(t, "fast", c.Ketch.Commit)
	assert.Equal(t, 100*time.Millisecond, c.Ketch.RetryMin)
}

func TestLoadRejectsMalformedIni(t *testing.T) {
	_, err := config.Load(strings.NewReader("not an ini file at all ["))
	assert.Error(t, err)
}
