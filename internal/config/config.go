// Package config loads default channel parameters from a TOML file,
// the way an operator overrides per-site defaults (page size, generator
// pattern, loopback) without touching CLI invocations.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"readoutcard.example/rocdma/pkg/cardtype"
	"readoutcard.example/rocdma/pkg/params"
	"readoutcard.example/rocdma/pkg/rocerr"
)

// Defaults is the on-disk shape of a site's default-parameter file,
// typically /etc/roc/roc.toml.
type Defaults struct {
	DmaPageSizeKiB uint64 `toml:"dma_page_size_kib"`
	// GeneratorEnabled is a pointer so an omitted generator_enabled key
	// is distinguishable from an explicit "generator_enabled = false":
	// a plain bool's zero value would otherwise silently override
	// params.Default's documented true default on every config-driven
	// run, even when the file never mentions the key.
	GeneratorEnabled  *bool  `toml:"generator_enabled"`
	GeneratorPattern  string `toml:"generator_pattern"`
	GeneratorLoopback string `toml:"generator_loopback"`
	ReadoutMode       string `toml:"readout_mode"`
}

// Load reads and parses a TOML defaults file.
func Load(path string) (Defaults, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults{}, rocerr.Wrap(rocerr.KindParameter, "read config file "+path, rocerr.Context{}, err)
	}
	var d Defaults
	if err := toml.Unmarshal(raw, &d); err != nil {
		return Defaults{}, rocerr.Wrap(rocerr.KindParameter, "parse config file "+path, rocerr.Context{}, err)
	}
	return d, nil
}

// ApplyTo folds d's non-zero fields into p as params.Options, the way a
// site-wide config layer underlies (and is overridden by) explicit CLI
// flags. Callers append their own options (e.g. params.WithBuffer, or a
// CLI flag that should win over the config file) after d's; later
// options in the list take precedence since each just overwrites the
// field it touches.
func (d Defaults) ApplyTo(id params.CardID, channel int, extra ...params.Option) (params.ChannelParams, error) {
	var opts []params.Option
	if d.DmaPageSizeKiB != 0 {
		opts = append(opts, params.WithDmaPageSize(params.PageSizeFromKiB(d.DmaPageSizeKiB)))
	}
	if d.GeneratorEnabled != nil {
		opts = append(opts, params.WithGeneratorEnabled(*d.GeneratorEnabled))
	}
	if d.GeneratorPattern != "" {
		pattern, err := parseGeneratorPattern(d.GeneratorPattern)
		if err != nil {
			return params.ChannelParams{}, err
		}
		opts = append(opts, params.WithGeneratorPattern(pattern))
	}
	if d.GeneratorLoopback != "" {
		mode, err := cardtype.ParseLoopbackMode(d.GeneratorLoopback)
		if err != nil {
			return params.ChannelParams{}, rocerr.Wrap(rocerr.KindParameter, "generator_loopback", rocerr.Context{}, err)
		}
		opts = append(opts, params.WithGeneratorLoopback(mode))
	}
	if d.ReadoutMode == "Triggered" {
		opts = append(opts, params.WithReadoutMode(cardtype.ReadoutTriggered))
	}
	opts = append(opts, extra...)
	return params.New(id, channel, opts...)
}

func parseGeneratorPattern(s string) (cardtype.GeneratorPattern, error) {
	switch s {
	case "Constant":
		return cardtype.GeneratorConstant, nil
	case "Incremental":
		return cardtype.GeneratorIncremental, nil
	case "Alternating":
		return cardtype.GeneratorAlternating, nil
	case "Flying0":
		return cardtype.GeneratorFlying0, nil
	case "Flying1":
		return cardtype.GeneratorFlying1, nil
	case "Random":
		return cardtype.GeneratorRandom, nil
	default:
		return 0, rocerr.New(rocerr.KindParameter, "unknown generator_pattern "+s, rocerr.Context{})
	}
}
