package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewProgramHolderDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	holder, err := NewProgramHolder(Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultProgramConfig(), holder.Get())
}

func TestNewProgramHolderFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "program.yml")
	content := []byte("program:\n  defaultCommissionRate: 45\n  defaultDurationMonths: 6\n  minimumPayoutCents: 5000\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewProgramHolder(Config{ProgramConfigFile: path}, zap.NewNop())
	require.NoError(t, err)

	got := holder.Get()
	assert.Equal(t, 45.0, got.DefaultCommissionRate)
	assert.Equal(t, 6, got.DefaultDurationMonths)
	assert.Equal(t, int64(5000), got.MinimumPayoutCents)
	assert.Equal(t, 10.0, got.DefaultSubAffiliateRate)
}

func TestNewProgramHolderRejectsInvalidRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "program.yml")
	require.NoError(t, os.WriteFile(path, []byte("program:\n  defaultCommissionRate: 140\n"), 0o600))

	_, err := NewProgramHolder(Config{ProgramConfigFile: path}, zap.NewNop())
	assert.Error(t, err)
}
