package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/smcfilter/internal/config"
	"github.com/san-kum/smcfilter/internal/models"
)

func samplerCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	preset, configFile = "", ""
	cmd := &cobra.Command{Use: "test"}
	addSamplerFlags(cmd)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestBuildConfigDefaults(t *testing.T) {
	cfg, err := buildConfig(samplerCmd(t), "")
	require.NoError(t, err)
	assert.Equal(t, models.NameRandomWalk, cfg.Model)
	assert.Equal(t, config.DefaultParticles, cfg.Particles)
}

func TestBuildConfigFlagsOverridePreset(t *testing.T) {
	cmd := samplerCmd(t, "--preset", "sharp", "--particles", "300")
	cfg, err := buildConfig(cmd, models.NameTempered)
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.Particles)
	assert.Equal(t, 50, cfg.Generations, "preset value kept when flag unset")
	assert.True(t, cfg.History)
}

func TestBuildConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	fileCfg := config.DefaultConfig()
	fileCfg.Model = models.NameTempered
	fileCfg.Generations = 7
	require.NoError(t, config.Save(path, fileCfg))

	cmd := samplerCmd(t, "--config", path, "--seed", "99")
	cfg, err := buildConfig(cmd, "")
	require.NoError(t, err)
	assert.Equal(t, models.NameTempered, cfg.Model)
	assert.Equal(t, 7, cfg.Generations)
	assert.Equal(t, uint64(99), cfg.Seed)
}

func TestBuildConfigErrors(t *testing.T) {
	_, err := buildConfig(samplerCmd(t, "--preset", "nope"), models.NameRandomWalk)
	assert.Error(t, err)

	_, err = buildConfig(samplerCmd(t, "--particles", "0"), models.NameRandomWalk)
	assert.Error(t, err)

	_, err = buildConfig(samplerCmd(t), "pendulum")
	assert.Error(t, err)

	missing := filepath.Join(t.TempDir(), "none.yaml")
	_, err = buildConfig(samplerCmd(t, "--config", missing), "")
	assert.True(t, err != nil && !os.IsExist(err))
}

func TestParseGrid(t *testing.T) {
	names, ranges, err := parseGrid([]string{"threshold=0.3, 0.5", "particles=100"})
	require.NoError(t, err)
	assert.Equal(t, []string{"threshold", "particles"}, names)
	assert.Equal(t, [][]float64{{0.3, 0.5}, {100}}, ranges)

	for _, bad := range []string{"threshold", "=1", "threshold=", "threshold=a,b"} {
		_, _, err := parseGrid([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestPickObjective(t *testing.T) {
	_, name := pickObjective("auto", models.NameTempered)
	assert.Equal(t, "evidence", name)
	_, name = pickObjective("auto", models.NameRandomWalk)
	assert.Equal(t, "rmse", name)
	_, name = pickObjective("coverage", models.NameRandomWalk)
	assert.Equal(t, "coverage", name)
}

func TestFormatParams(t *testing.T) {
	assert.Equal(t, "a=1 b=0.5", formatParams(map[string]float64{"b": 0.5, "a": 1}))
}
