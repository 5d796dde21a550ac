package main

import (
	"strings"
	"testing"

	"ekv"
	"ekv/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	cc := config.Default()

	compose, err := render("docker-compose.yml.tmpl", cc)
	require.NoError(t, err)
	assert.Contains(t, string(compose), "directory:")
	assert.Equal(t, len(cc.Storage), strings.Count(string(compose), ekv.UuidEnv+"="))

	script, err := render("run.sh.tmpl", cc)
	require.NoError(t, err)
	assert.Contains(t, string(script), cc.Directory.ServiceAddr())
	assert.Contains(t, string(script), ekv.UuidEnv+"=0 ekv")
}
