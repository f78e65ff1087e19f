// Command roc-readout drives a channel's push/fill/pop loop against a
// registered buffer, the CLI surface spec.md §6 documents for
// completeness alongside roc-sanity-check.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"readoutcard.example/rocdma/internal/cardopen"
	"readoutcard.example/rocdma/internal/config"
	"readoutcard.example/rocdma/pkg/busmap"
	"readoutcard.example/rocdma/pkg/cardtype"
	"readoutcard.example/rocdma/pkg/chanlock"
	"readoutcard.example/rocdma/pkg/params"
	"readoutcard.example/rocdma/pkg/superpage"
)

var log = logrus.New()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		id         string
		channel    int
		pageSizeKB uint64
		bufMB      uint64
		genEnable  bool
		genLoopb   string
		serial     int32
		superpages int
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "roc-readout",
		Short: "Run a readout loop against one card channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cardID, err := params.ParseCardID(id)
			if err != nil {
				return err
			}
			if serial != 0 {
				cardID = params.CardID{Serial: serial, HasSerial: true}
			}

			loopback, err := cardtype.ParseLoopbackMode(genLoopb)
			if err != nil {
				return err
			}

			// Flags always win over the config file: they are appended
			// last in ApplyTo's option list.
			cliOpts := []params.Option{
				params.WithDmaPageSize(params.PageSizeFromKiB(pageSizeKB)),
				params.WithGeneratorEnabled(genEnable),
				params.WithGeneratorLoopback(loopback),
				params.WithBuffer(params.BufferParameters{
					Kind: params.BufferMemory,
					Size: params.BufferSizeFromMiB(bufMB),
				}),
			}

			var p params.ChannelParams
			if configPath != "" {
				defaults, err := config.Load(configPath)
				if err != nil {
					return err
				}
				p, err = defaults.ApplyTo(cardID, channel, cliOpts...)
				if err != nil {
					return err
				}
			} else {
				p, err = params.New(cardID, channel, cliOpts...)
				if err != nil {
					return err
				}
			}

			return runReadout(p, cardID, superpages)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&id, "address", "", "card pci address")
	flags.IntVar(&channel, "channel", 0, "channel number")
	flags.Uint64Var(&pageSizeKB, "cp-dma-pagesize", 8, "DMA page size in KiB")
	flags.Uint64Var(&bufMB, "cp-dma-bufmb", 128, "registered buffer size in MiB")
	flags.BoolVar(&genEnable, "cp-gen-enable", true, "enable the on-card data generator")
	flags.StringVar(&genLoopb, "cp-gen-loopb", "INTERNAL", "generator loopback mode: NONE|INTERNAL|SIU|DIU|RORC")
	flags.Int32Var(&serial, "serial", 0, "card serial number, overrides --address")
	flags.IntVar(&superpages, "superpages", 4, "number of 1MiB superpages to push before exiting")
	flags.StringVar(&configPath, "config", "", "path to a site defaults TOML file (e.g. /etc/roc/roc.toml)")

	return cmd
}

func runReadout(p params.ChannelParams, id params.CardID, numSuperpages int) error {
	if id.PciAddress == "" {
		return fmt.Errorf("roc-readout requires --address=<pci address> in this build")
	}

	buf := make([]byte, p.Buffer.Size)
	mapper := busmap.IdentityMapper{} // flat host buffer, bus address == user address offset
	registered, err := busmap.Register(mapper, busmap.AddrOf(buf), p.Buffer.Size, readyFifoSizeBytes)
	if err != nil {
		return err
	}

	ch, closeFn, err := cardopen.Open(p, id.PciAddress, chanlock.ModeWait, registered.UserBase, registered.BusBase)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := ch.StartDma(); err != nil {
		return err
	}
	defer ch.StopDma()

	pageGranule := cardtype.CardTypeCRORC.PageGranule()
	for i := 0; i < numSuperpages; i++ {
		sp := superpage.Superpage{Offset: uint64(i) * pageGranule, Size: pageGranule}
		if err := ch.PushSuperpage(sp); err != nil {
			return err
		}
	}

	popped := 0
	deadline := time.Now().Add(30 * time.Second)
	for popped < numSuperpages && time.Now().Before(deadline) {
		if err := ch.FillSuperpages(); err != nil {
			return err
		}
		for ch.GetReadyQueueSize() > 0 {
			sp, err := ch.PopSuperpage()
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"offset": sp.Offset, "received": sp.Received}).Info("superpage ready")
			popped++
		}
	}
	if popped < numSuperpages {
		return fmt.Errorf("timed out after popping %d/%d superpages", popped, numSuperpages)
	}
	return nil
}

// readyFifoSizeBytes is the minimum scatter/gather segment size the
// engine requires (spec.md §4.3 Bus-address translation).
const readyFifoSizeBytes = 128 * 8
