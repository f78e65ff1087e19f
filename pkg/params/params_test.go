package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readoutcard.example/rocdma/pkg/cardtype"
	"readoutcard.example/rocdma/pkg/rocerr"
)

func TestNewAppliesDefaultsAndFillsGeneratorDataSizeFromPageSize(t *testing.T) {
	p, err := New(CardID{PciAddress: "0000:01:00.0"}, 0,
		WithBuffer(BufferParameters{Kind: BufferMemory, Size: 1024 * 1024}))
	require.NoError(t, err)
	assert.Equal(t, uint64(8*1024), p.DmaPageSize)
	assert.True(t, p.GeneratorEnabled)
	assert.Equal(t, cardtype.GeneratorIncremental, p.GeneratorPattern)
	assert.Equal(t, cardtype.LoopbackInternal, p.GeneratorLoopback)
	assert.Equal(t, uint32(8*1024), p.GeneratorDataSize)
}

func TestNewHonorsExplicitGeneratorDataSize(t *testing.T) {
	p, err := New(CardID{PciAddress: "0000:01:00.0"}, 0,
		WithDmaPageSize(16*1024),
		WithGeneratorDataSize(512),
		WithBuffer(BufferParameters{Kind: BufferMemory, Size: 1024 * 1024}))
	require.NoError(t, err)
	assert.Equal(t, uint32(512), p.GeneratorDataSize)
}

func TestNewFailsWithoutCardID(t *testing.T) {
	_, err := New(CardID{}, 0, WithBuffer(BufferParameters{Kind: BufferMemory, Size: 1024}))
	assert.True(t, rocerr.Is(err, rocerr.KindParameter))
}

func TestNewFailsWithoutBuffer(t *testing.T) {
	_, err := New(CardID{PciAddress: "0000:01:00.0"}, 0)
	assert.True(t, rocerr.Is(err, rocerr.KindParameter))
}

func TestNewAcceptsNullBufferWithoutSize(t *testing.T) {
	_, err := New(CardID{PciAddress: "0000:01:00.0"}, 0, WithBuffer(BufferParameters{Kind: BufferNull}))
	assert.NoError(t, err)
}

func TestNewRejectsChannelOutOfRangeForCRORC(t *testing.T) {
	_, err := New(CardID{PciAddress: "0000:01:00.0"}, 99, WithBuffer(BufferParameters{Kind: BufferNull}))
	assert.True(t, rocerr.Is(err, rocerr.KindOutOfRange))
}

func TestNewAcceptsHighestValidCRORCChannel(t *testing.T) {
	_, err := New(CardID{PciAddress: "0000:01:00.0"}, 5, WithBuffer(BufferParameters{Kind: BufferNull}))
	assert.NoError(t, err)
}

func TestNewRejectsChannelOneBeyondCRORCBound(t *testing.T) {
	_, err := New(CardID{PciAddress: "0000:01:00.0"}, 6, WithBuffer(BufferParameters{Kind: BufferNull}))
	assert.True(t, rocerr.Is(err, rocerr.KindOutOfRange))
}

func TestNewAcceptsHighestValidDummyChannelViaCardType(t *testing.T) {
	_, err := New(CardID{PciAddress: "0000:01:00.0"}, 7,
		WithCardType(cardtype.CardTypeDummy), WithBuffer(BufferParameters{Kind: BufferNull}))
	assert.NoError(t, err)
}

func TestParseCardIDNumericIsSerial(t *testing.T) {
	id, err := ParseCardID("4242")
	require.NoError(t, err)
	assert.True(t, id.HasSerial)
	assert.Equal(t, int32(4242), id.Serial)
}

func TestParseCardIDNonNumericIsPciAddress(t *testing.T) {
	id, err := ParseCardID("0000:01:00.0")
	require.NoError(t, err)
	assert.False(t, id.HasSerial)
	assert.Equal(t, "0000:01:00.0", id.PciAddress)
}

func TestParseCardIDRejectsEmpty(t *testing.T) {
	_, err := ParseCardID("")
	assert.Error(t, err)
}

func TestPageSizeFromKiBMatchesCLIExample(t *testing.T) {
	assert.Equal(t, uint64(307200), PageSizeFromKiB(300))
}

func TestBufferSizeFromMiBMatchesCLIExample(t *testing.T) {
	assert.Equal(t, uint64(419430400), BufferSizeFromMiB(400))
}
