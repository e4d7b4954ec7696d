package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyValidates(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())
	assert.InDelta(t, 1.0, p.Weights.Sum(), 0.001)
}

func TestValidateRejectsBadWeights(t *testing.T) {
	p := Default()
	p.Weights.Fitness = 0.9
	assert.Error(t, p.Validate())

	p = Default()
	p.Weights.Fitness = -0.1
	p.Weights.JobCards = 0.65
	assert.Error(t, p.Validate())
}

func TestValidateThresholds(t *testing.T) {
	p := Default()
	p.CertExpiryWarnDays = 0
	assert.Error(t, p.Validate())

	p = Default()
	p.JobPriorityCriticalMin = 6
	assert.Error(t, p.Validate())

	p = Default()
	p.NewerTrainMinRatio = 1.5
	assert.Error(t, p.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), p)

	p, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	body := []byte("weights:\n  fitness: 0.40\n  jobCards: 0.20\n  branding: 0.10\n  mileage: 0.15\n  cleaning: 0.10\n  stabling: 0.05\ncertExpiryWarnDays: 45\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.40, p.Weights.Fitness)
	assert.Equal(t, 45, p.CertExpiryWarnDays)
	// untouched keys keep their defaults
	assert.Equal(t, Default().CleaningStaleDays, p.CleaningStaleDays)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights:\n  fitness: 0.99\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
