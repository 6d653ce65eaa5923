//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrichCmd_Metadata(t *testing.T) {
	assert.Equal(t, "enrich", enrichCmd.Use)
	assert.NotEmpty(t, enrichCmd.Short)

	for _, name := range []string{"batch", "fast", "verbose", "search-fallback"} {
		assert.NotNil(t, enrichCmd.Flags().Lookup(name), "missing flag %s", name)
	}
	assert.Equal(t, "500", enrichCmd.Flags().Lookup("batch").DefValue)
	assert.Equal(t, "false", enrichCmd.Flags().Lookup("search-fallback").DefValue)
}

func TestEnrichCmd_RequiresDatabase(t *testing.T) {
	setTestConfig(t)

	_, err := runCommand(t, enrichCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Run load first")
	assert.NoFileExists(t, cfg.Store.DatabaseURL)
}

func TestEnrichCmd_FastAfterLoad(t *testing.T) {
	setTestConfig(t)
	writeInputs(t)
	fastLoad(t)

	enrichFast = true
	t.Cleanup(func() { enrichFast = false })

	out, err := runCommand(t, enrichCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Enrich finished")
	assert.NotContains(t, out, "Stopped early")
}
