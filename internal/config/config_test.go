package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readoutcard.example/rocdma/pkg/cardtype"
	"readoutcard.example/rocdma/pkg/params"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roc.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesTOML(t *testing.T) {
	path := writeConfig(t, `
dma_page_size_kib = 16
generator_enabled = true
generator_pattern = "Alternating"
generator_loopback = "SIU"
readout_mode = "Triggered"
`)
	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), d.DmaPageSizeKiB)
	assert.Equal(t, "Alternating", d.GeneratorPattern)
	require.NotNil(t, d.GeneratorEnabled)
	assert.True(t, *d.GeneratorEnabled)
}

func TestLoadLeavesGeneratorEnabledNilWhenKeyAbsent(t *testing.T) {
	path := writeConfig(t, `dma_page_size_kib = 16`)
	d, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, d.GeneratorEnabled)
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestApplyToFoldsConfigIntoParams(t *testing.T) {
	enabled := true
	d := Defaults{
		DmaPageSizeKiB:    16,
		GeneratorEnabled:  &enabled,
		GeneratorPattern:  "Alternating",
		GeneratorLoopback: "SIU",
		ReadoutMode:       "Triggered",
	}
	p, err := d.ApplyTo(params.CardID{PciAddress: "0000:01:00.0"}, 0,
		params.WithBuffer(params.BufferParameters{Kind: params.BufferMemory, Size: 1024}))
	require.NoError(t, err)
	assert.Equal(t, uint64(16*1024), p.DmaPageSize)
	assert.Equal(t, cardtype.GeneratorAlternating, p.GeneratorPattern)
	assert.Equal(t, cardtype.LoopbackSiu, p.GeneratorLoopback)
	assert.Equal(t, cardtype.ReadoutTriggered, p.ReadoutMode)
	assert.True(t, p.GeneratorEnabled)
}

func TestApplyToLeavesGeneratorEnabledAtDefaultWhenOmitted(t *testing.T) {
	// No generator_enabled key at all: the documented default (true,
	// params.Default) must survive, not bool's zero value (false).
	d := Defaults{GeneratorPattern: "Alternating"}
	p, err := d.ApplyTo(params.CardID{PciAddress: "0000:01:00.0"}, 0,
		params.WithBuffer(params.BufferParameters{Kind: params.BufferMemory, Size: 1024}))
	require.NoError(t, err)
	assert.True(t, p.GeneratorEnabled)
}

func TestApplyToHonorsExplicitGeneratorDisabled(t *testing.T) {
	disabled := false
	d := Defaults{GeneratorEnabled: &disabled}
	p, err := d.ApplyTo(params.CardID{PciAddress: "0000:01:00.0"}, 0,
		params.WithBuffer(params.BufferParameters{Kind: params.BufferMemory, Size: 1024}))
	require.NoError(t, err)
	assert.False(t, p.GeneratorEnabled)
}

func TestApplyToExtraOptionsOverrideConfig(t *testing.T) {
	d := Defaults{GeneratorLoopback: "SIU"}
	p, err := d.ApplyTo(params.CardID{PciAddress: "0000:01:00.0"}, 0,
		params.WithGeneratorLoopback(cardtype.LoopbackDiu),
		params.WithBuffer(params.BufferParameters{Kind: params.BufferMemory, Size: 1024}))
	require.NoError(t, err)
	assert.Equal(t, cardtype.LoopbackDiu, p.GeneratorLoopback)
}

func TestApplyToRejectsUnknownGeneratorPattern(t *testing.T) {
	d := Defaults{GeneratorPattern: "Sinusoidal"}
	_, err := d.ApplyTo(params.CardID{PciAddress: "0000:01:00.0"}, 0)
	assert.Error(t, err)
}
