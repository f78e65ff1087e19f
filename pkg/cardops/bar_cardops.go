package cardops

import (
	"fmt"
	"time"

	"readoutcard.example/rocdma/pkg/bar"
	"readoutcard.example/rocdma/pkg/cardtype"
	"readoutcard.example/rocdma/pkg/firmware"
	"readoutcard.example/rocdma/pkg/rocerr"
)

// BarCardOps implements CardOps by programming a card's BAR directly,
// the way a userspace PCIe driver without a kernel-resident ioctl layer
// must (contrast with a kernel-driver-mediated card, whose adapter would
// instead issue ioctls the way pkg/bar's sibling would if this were a
// char-device-backed card).
type BarCardOps struct {
	Bar   bar.Bar
	Sleep func(time.Duration) // overridable for tests
}

// NewBarCardOps wraps bar with real-time sleeps for settle delays.
func NewBarCardOps(b bar.Bar) *BarCardOps {
	return &BarCardOps{Bar: b, Sleep: time.Sleep}
}

func (c *BarCardOps) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return rocerr.Wrap(rocerr.KindCard, op, rocerr.Context{}, err)
}

// InitDiuVersion reads the RFID register and returns it packed into a
// DiuConfig for downstream reset/loopback/trigger calls.
func (c *BarCardOps) InitDiuVersion() (DiuConfig, error) {
	raw, err := c.Bar.ReadRegister(regRFID)
	if err != nil {
		return DiuConfig{}, c.wrap("init_diu_version", err)
	}
	if _, err := firmware.DecodeRFID(raw); err != nil {
		return DiuConfig{}, rocerr.Wrap(rocerr.KindCard, "init_diu_version: malformed RFID", rocerr.Context{}, err)
	}
	return DiuConfig{Version: raw}, nil
}

// Reset executes the reset sequence up to level, applying a settle delay
// after every hardware reset step it performs.
func (c *BarCardOps) Reset(level cardtype.ResetLevel, diu DiuConfig) error {
	if level == cardtype.ResetNothing {
		return nil
	}

	if err := c.Bar.WriteRegister(regResetControl, resetBitInternal); err != nil {
		return c.wrap("reset(internal)", err)
	}
	c.Sleep(ResetSettleDelay)

	if level.AtLeast(cardtype.ResetInternalDiuSiu) {
		if err := c.Bar.WriteRegister(regResetControl, resetBitInternal|resetBitSiu|resetBitDiu); err != nil {
			return c.wrap("reset(internal+diu+siu)", err)
		}
		c.Sleep(ResetSettleDelay)
	}

	return nil
}

// ArmDdl programs the link-facing endpoint for the given target.
func (c *BarCardOps) ArmDdl(target DdlTarget, diu DiuConfig) error {
	return c.wrap("arm_ddl", c.Bar.WriteRegister(regDdlArm, uint32(target)))
}

// StartDataReceiver programs the Ready-FIFO bus address and enables the
// receiver.
func (c *BarCardOps) StartDataReceiver(readyFifoBusAddr uint64) error {
	if err := c.Bar.WriteRegister(regReadyFifoBusAddrLo, uint32(readyFifoBusAddr)); err != nil {
		return c.wrap("start_data_receiver", err)
	}
	if err := c.Bar.WriteRegister(regReadyFifoBusAddrHi, uint32(readyFifoBusAddr>>32)); err != nil {
		return c.wrap("start_data_receiver", err)
	}
	return c.wrap("start_data_receiver", c.Bar.WriteRegister(regReceiverControl, receiverEnableBit))
}

// StopDataReceiver disables the receiver.
func (c *BarCardOps) StopDataReceiver() error {
	return c.wrap("stop_data_receiver", c.Bar.WriteRegister(regReceiverControl, 0))
}

// PushRxFreeFifo programs one descriptor into the card's hardware FIFO
// of free-page descriptors.
func (c *BarCardOps) PushRxFreeFifo(busAddr uint64, words uint32, slotIndex int) error {
	if err := c.Bar.WriteRegister(regRxFreeFifoDataLo, uint32(busAddr)); err != nil {
		return c.wrap("push_rx_free_fifo", err)
	}
	if err := c.Bar.WriteRegister(regRxFreeFifoDataHi, uint32(busAddr>>32)); err != nil {
		return c.wrap("push_rx_free_fifo", err)
	}
	if err := c.Bar.WriteRegister(regRxFreeFifoWords, words); err != nil {
		return c.wrap("push_rx_free_fifo", err)
	}
	if err := c.Bar.WriteRegister(regRxFreeFifoSlot, uint32(slotIndex)); err != nil {
		return c.wrap("push_rx_free_fifo", err)
	}
	return c.wrap("push_rx_free_fifo", c.Bar.WriteRegister(regRxFreeFifoPush, 1))
}

// ArmDataGenerator configures the on-card data generator.
func (c *BarCardOps) ArmDataGenerator(initValue, initWord uint32, pattern cardtype.GeneratorPattern, dataSize, seed uint32) error {
	if err := c.Bar.WriteRegister(regGeneratorInitVal, initValue); err != nil {
		return c.wrap("arm_data_generator", err)
	}
	if err := c.Bar.WriteRegister(regGeneratorInitWord, initWord); err != nil {
		return c.wrap("arm_data_generator", err)
	}
	if err := c.Bar.WriteRegister(regGeneratorDataSize, dataSize); err != nil {
		return c.wrap("arm_data_generator", err)
	}
	if err := c.Bar.WriteRegister(regGeneratorSeed, seed); err != nil {
		return c.wrap("arm_data_generator", err)
	}
	return c.wrap("arm_data_generator", c.Bar.WriteRegister(regGeneratorControl, uint32(pattern)<<8))
}

// StartDataGenerator starts the generator for up to maxEvents events (0
// means free-running).
func (c *BarCardOps) StartDataGenerator(maxEvents uint32) error {
	if err := c.Bar.WriteRegister(regGeneratorMaxEvt, maxEvents); err != nil {
		return c.wrap("start_data_generator", err)
	}
	ctrl, err := c.Bar.ReadRegister(regGeneratorControl)
	if err != nil {
		return c.wrap("start_data_generator", err)
	}
	return c.wrap("start_data_generator", c.Bar.WriteRegister(regGeneratorControl, ctrl|generatorEnableBit))
}

// StopDataGenerator stops the generator.
func (c *BarCardOps) StopDataGenerator() error {
	ctrl, err := c.Bar.ReadRegister(regGeneratorControl)
	if err != nil {
		return c.wrap("stop_data_generator", err)
	}
	return c.wrap("stop_data_generator", c.Bar.WriteRegister(regGeneratorControl, ctrl&^uint32(generatorEnableBit)))
}

// StartTrigger issues the start-of-burst / RDYRX trigger command.
func (c *BarCardOps) StartTrigger(diu DiuConfig) error {
	return c.wrap("start_trigger", c.Bar.WriteRegister(regTriggerControl, triggerStartBit))
}

// StopTrigger issues the end-of-burst (EOBTR) trigger command.
func (c *BarCardOps) StopTrigger(diu DiuConfig) error {
	return c.wrap("stop_trigger", c.Bar.WriteRegister(regTriggerControl, 0))
}

// SetLoopbackInternal routes generated data through the internal
// loopback path.
func (c *BarCardOps) SetLoopbackInternal() error {
	return c.wrap("set_loopback_internal", c.Bar.WriteRegister(regLoopbackControl, loopbackModeInternal))
}

// SetLoopbackSiu routes generated data through the SIU loopback path.
func (c *BarCardOps) SetLoopbackSiu(diu DiuConfig) error {
	return c.wrap("set_loopback_siu", c.Bar.WriteRegister(regLoopbackControl, loopbackModeSiu))
}

// AssertLinkUp fails unless the link-status register reports the link
// up bit set.
func (c *BarCardOps) AssertLinkUp() error {
	status, err := c.Bar.ReadRegister(regLinkStatus)
	if err != nil {
		return c.wrap("assert_link_up", err)
	}
	if status&linkStatusUpBit == 0 {
		return rocerr.New(rocerr.KindCard, "link is not up", rocerr.Context{Status: status})
	}
	return nil
}

// SiuCommand issues a raw SIU command word.
func (c *BarCardOps) SiuCommand(op SiuOp) error {
	return c.wrap("siu_command", c.Bar.WriteRegister(regSiuCommand, uint32(op)))
}

// DiuCommand issues a raw DIU command word.
func (c *BarCardOps) DiuCommand(op DiuOp) error {
	return c.wrap("diu_command", c.Bar.WriteRegister(regDiuCommand, uint32(op)))
}

// AssertFreeFifoEmpty fails unless the card reports its free-descriptor
// FIFO empty (used before priming a fresh ring).
func (c *BarCardOps) AssertFreeFifoEmpty() error {
	status, err := c.Bar.ReadRegister(regFreeFifoEmptyStatus)
	if err != nil {
		return c.wrap("assert_free_fifo_empty", err)
	}
	if status&freeFifoEmptyBit == 0 {
		return rocerr.New(rocerr.KindCard, "free descriptor fifo not empty", rocerr.Context{Status: status})
	}
	return nil
}

// ReadRegister exposes a raw register read for diagnostics.
func (c *BarCardOps) ReadRegister(addr uint32) (uint32, error) {
	v, err := c.Bar.ReadRegister(addr)
	return v, c.wrap(fmt.Sprintf("read_register(0x%x)", addr), err)
}

// GetSerial reads the card's serial number, if the firmware exposes one.
func (c *BarCardOps) GetSerial() (int32, bool, error) {
	valid, err := c.Bar.ReadRegister(regSerialValid)
	if err != nil {
		return 0, false, c.wrap("get_serial", err)
	}
	if valid == 0 {
		return 0, false, nil
	}
	serial, err := c.Bar.ReadRegister(regSerialLo)
	if err != nil {
		return 0, false, c.wrap("get_serial", err)
	}
	return int32(serial), true, nil
}

// GetFirmwareInfo renders the RFID register as a human-readable version
// string.
func (c *BarCardOps) GetFirmwareInfo() (string, error) {
	raw, err := c.Bar.ReadRegister(regRFID)
	if err != nil {
		return "", c.wrap("get_firmware_info", err)
	}
	v, err := firmware.DecodeRFID(raw)
	if err != nil {
		return "", rocerr.Wrap(rocerr.KindCard, "get_firmware_info", rocerr.Context{}, err)
	}
	return v.String(), nil
}
