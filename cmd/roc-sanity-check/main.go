// Command roc-sanity-check opens one card channel and reads and decodes
// its firmware version. It does not check link state or the free FIFO,
// and it reads no register given by --address. Exits 0 on success,
// non-zero on card fault (spec.md §6 CLI surface).
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"readoutcard.example/rocdma/pkg/chanlock"
	"readoutcard.example/rocdma/pkg/params"

	"readoutcard.example/rocdma/internal/cardopen"
)

var log = logrus.New()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		id       string
		channel  int
		address  uint32
		regrange uint32
		value    uint32
	)

	cmd := &cobra.Command{
		Use:   "roc-sanity-check",
		Short: "Run a basic hardware sanity check on one card channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cardID, err := params.ParseCardID(id)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"card_id": cardID,
				"channel": channel,
			}).Info("starting sanity check")

			return runSanityCheck(cardID, channel, address, regrange, value)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&id, "id", "", "card id: pci address or serial number")
	flags.IntVar(&channel, "channel", 0, "channel number")
	flags.Uint32Var(&address, "address", 0, "register address, logged with --regrange (not read in this build)")
	flags.Uint32Var(&regrange, "regrange", 0, "number of registers to dump starting at --address")
	flags.Uint32Var(&value, "value", 0, "value to compare a single register read against, if --regrange==1")
	cmd.MarkFlagRequired("id")

	return cmd
}

// runSanityCheck is factored out of RunE so it can be exercised without
// going through cobra's flag parsing.
func runSanityCheck(id params.CardID, channel int, address, regrange, value uint32) error {
	if id.PciAddress == "" {
		return fmt.Errorf("roc-sanity-check requires --id=<pci address>; serial resolution is not wired in this build")
	}

	p, err := params.New(id, channel, params.WithBuffer(params.BufferParameters{Kind: params.BufferNull}))
	if err != nil {
		return err
	}

	ch, closeFn, err := cardopen.Open(p, id.PciAddress, chanlock.ModeTry, 0, 0)
	if err != nil {
		log.WithError(err).Error("failed to open channel")
		return err
	}
	defer closeFn()

	fwInfo, err := ch.GetFirmwareInfo()
	if err != nil {
		log.WithError(err).Error("card reported a fault")
		return err
	}
	log.WithField("firmware", fwInfo).Info("firmware version decoded")

	if regrange > 0 {
		log.WithFields(logrus.Fields{"address": address, "regrange": regrange}).Info("register dump requested but not wired to a raw address read in this build")
	}
	_ = value

	fmt.Println("sanity check passed")
	return nil
}
