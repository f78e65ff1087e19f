package cardops

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readoutcard.example/rocdma/pkg/cardtype"
	"readoutcard.example/rocdma/testutil"
)

func newTestOps(t *testing.T) (*BarCardOps, *testutil.FakeBar) {
	t.Helper()
	b := testutil.NewFakeBar(0x100)
	c := NewBarCardOps(b)
	var slept []time.Duration
	c.Sleep = func(d time.Duration) { slept = append(slept, d) }
	return c, b
}

func TestInitDiuVersionReadsRFID(t *testing.T) {
	c, b := newTestOps(t)
	require.NoError(t, b.WriteRegister(regRFID, 0x02314203))

	diu, err := c.InitDiuVersion()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x02314203), diu.Version)
}

func TestInitDiuVersionRejectsMalformedRFID(t *testing.T) {
	c, b := newTestOps(t)
	require.NoError(t, b.WriteRegister(regRFID, 0xff000000))

	_, err := c.InitDiuVersion()
	assert.Error(t, err)
}

func TestResetInternalOnlyWritesOneStep(t *testing.T) {
	c, b := newTestOps(t)
	require.NoError(t, c.Reset(cardtype.ResetInternal, DiuConfig{}))

	v, err := b.ReadRegister(regResetControl)
	require.NoError(t, err)
	assert.Equal(t, uint32(resetBitInternal), v)
}

func TestResetInternalDiuSiuWritesBothSteps(t *testing.T) {
	c, b := newTestOps(t)
	require.NoError(t, c.Reset(cardtype.ResetInternalDiuSiu, DiuConfig{}))

	v, err := b.ReadRegister(regResetControl)
	require.NoError(t, err)
	assert.Equal(t, uint32(resetBitInternal|resetBitSiu|resetBitDiu), v)
}

func TestResetNothingWritesNoRegister(t *testing.T) {
	c, b := newTestOps(t)
	require.NoError(t, c.Reset(cardtype.ResetNothing, DiuConfig{}))

	v, err := b.ReadRegister(regResetControl)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)
}

func TestStartDataReceiverProgramsAddressAndEnables(t *testing.T) {
	c, b := newTestOps(t)
	require.NoError(t, c.StartDataReceiver(0x1_0000_0002))

	lo, _ := b.ReadRegister(regReadyFifoBusAddrLo)
	hi, _ := b.ReadRegister(regReadyFifoBusAddrHi)
	ctrl, _ := b.ReadRegister(regReceiverControl)
	assert.Equal(t, uint32(2), lo)
	assert.Equal(t, uint32(1), hi)
	assert.Equal(t, uint32(receiverEnableBit), ctrl)
}

func TestPushRxFreeFifoWritesAllFields(t *testing.T) {
	c, b := newTestOps(t)
	require.NoError(t, c.PushRxFreeFifo(0x200, 2048, 5))

	lo, _ := b.ReadRegister(regRxFreeFifoDataLo)
	words, _ := b.ReadRegister(regRxFreeFifoWords)
	slot, _ := b.ReadRegister(regRxFreeFifoSlot)
	push, _ := b.ReadRegister(regRxFreeFifoPush)
	assert.Equal(t, uint32(0x200), lo)
	assert.Equal(t, uint32(2048), words)
	assert.Equal(t, uint32(5), slot)
	assert.Equal(t, uint32(1), push)
}

func TestAssertLinkUpFailsWhenBitClear(t *testing.T) {
	c, _ := newTestOps(t)
	err := c.AssertLinkUp()
	assert.ErrorContains(t, err, "link is not up")
}

func TestAssertLinkUpPassesWhenBitSet(t *testing.T) {
	c, b := newTestOps(t)
	require.NoError(t, b.WriteRegister(regLinkStatus, linkStatusUpBit))
	assert.NoError(t, c.AssertLinkUp())
}

func TestAssertFreeFifoEmptyFailsWhenBitClear(t *testing.T) {
	c, _ := newTestOps(t)
	assert.Error(t, c.AssertFreeFifoEmpty())
}

func TestGetSerialReportsAbsentWhenInvalid(t *testing.T) {
	c, _ := newTestOps(t)
	serial, ok, err := c.GetSerial()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(0), serial)
}

func TestGetSerialReadsWhenValid(t *testing.T) {
	c, b := newTestOps(t)
	require.NoError(t, b.WriteRegister(regSerialValid, 1))
	require.NoError(t, b.WriteRegister(regSerialLo, 424242))

	serial, ok, err := c.GetSerial()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(424242), serial)
}

func TestGetFirmwareInfoRendersVersionString(t *testing.T) {
	c, b := newTestOps(t)
	// reserved=0x2, major=3, minor=20, year offset=20 (->2020), month=3, day=5.
	raw := uint32(0x2)<<24 | uint32(3)<<21 | uint32(20)<<14 | uint32(20)<<9 | uint32(3)<<5 | uint32(5)
	require.NoError(t, b.WriteRegister(regRFID, raw))

	s, err := c.GetFirmwareInfo()
	require.NoError(t, err)
	assert.Equal(t, "3.20:2020-3-5", s)
}

func TestStartStopDataGeneratorTogglesEnableBitOnly(t *testing.T) {
	c, b := newTestOps(t)
	require.NoError(t, b.WriteRegister(regGeneratorControl, 0x0700))

	require.NoError(t, c.StartDataGenerator(10))
	v, _ := b.ReadRegister(regGeneratorControl)
	assert.Equal(t, uint32(0x0700|generatorEnableBit), v)

	require.NoError(t, c.StopDataGenerator())
	v, _ = b.ReadRegister(regGeneratorControl)
	assert.Equal(t, uint32(0x0700), v)
}
