package rocchannel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readoutcard.example/rocdma/pkg/cardtype"
	"readoutcard.example/rocdma/pkg/params"
	"readoutcard.example/rocdma/pkg/rocerr"
	"readoutcard.example/rocdma/pkg/superpage"
)

func newTestDummy(t *testing.T, bufSize uint64) *DummyChannel {
	t.Helper()
	p, err := params.New(params.CardID{PciAddress: "ff:02.0"}, 0,
		params.WithBuffer(params.BufferParameters{Kind: params.BufferMemory, Size: bufSize}))
	require.NoError(t, err)
	d, err := OpenDummy(p)
	require.NoError(t, err)
	return d
}

func TestDummyFillSuperpagesDoesNothingUntilStarted(t *testing.T) {
	granule := cardtype.CardTypeDummy.PageGranule()
	d := newTestDummy(t, granule*2)
	require.NoError(t, d.PushSuperpage(superpage.Superpage{Offset: 0, Size: granule}))

	require.NoError(t, d.FillSuperpages())
	assert.Equal(t, 0, d.GetReadyQueueSize())
}

func TestDummyFillSuperpagesCompletesSynchronously(t *testing.T) {
	granule := cardtype.CardTypeDummy.PageGranule()
	d := newTestDummy(t, granule*2)
	require.NoError(t, d.StartDma())
	require.NoError(t, d.PushSuperpage(superpage.Superpage{Offset: 0, Size: granule}))

	require.NoError(t, d.FillSuperpages())
	assert.Equal(t, 1, d.GetReadyQueueSize())

	sp, err := d.PopSuperpage()
	require.NoError(t, err)
	assert.True(t, sp.Ready)
	assert.Equal(t, granule, sp.Received)
}

func TestDummyPushSuperpageRejectsWrongGranule(t *testing.T) {
	granule := cardtype.CardTypeDummy.PageGranule()
	d := newTestDummy(t, granule*2)
	err := d.PushSuperpage(superpage.Superpage{Offset: 0, Size: granule / 2})
	assert.True(t, rocerr.Is(err, rocerr.KindParameter))
}

func TestDummyStopDmaStopsFilling(t *testing.T) {
	granule := cardtype.CardTypeDummy.PageGranule()
	d := newTestDummy(t, granule*2)
	require.NoError(t, d.StartDma())
	require.NoError(t, d.PushSuperpage(superpage.Superpage{Offset: 0, Size: granule}))
	require.NoError(t, d.StopDma())

	require.NoError(t, d.FillSuperpages())
	assert.Equal(t, 0, d.GetReadyQueueSize())
}

func TestDummyIdentityValues(t *testing.T) {
	d := newTestDummy(t, cardtype.CardTypeDummy.PageGranule())
	assert.Equal(t, cardtype.CardTypeDummy, d.GetCardType())
	serial, ok, err := d.GetSerial()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(0xd00d), serial)

	info, err := d.GetFirmwareInfo()
	require.NoError(t, err)
	assert.Equal(t, "Dummy", info)

	temp, err := d.GetTemperature()
	require.NoError(t, err)
	assert.Equal(t, float32(42.0), temp)

	node, err := d.GetNumaNode()
	require.NoError(t, err)
	assert.Equal(t, -1, node)
}
