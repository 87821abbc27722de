package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTemplateLoadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	require.NoError(t, WriteTemplate(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StrategyDualMA, cfg.StrategyType)
	assert.Equal(t, []string{"2330"}, cfg.SelectedSymbols)
	assert.Equal(t, 1_000_000.0, cfg.InitialCapital)
	assert.Empty(t, cfg.CustomRules)
	require.NoError(t, cfg.Validate())
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	require.NoError(t, WriteTemplate(path))
	assert.Error(t, WriteTemplate(path))
}
