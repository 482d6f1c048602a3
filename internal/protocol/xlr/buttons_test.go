package xlr

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/mixerd/internal/coremodel"
)

func TestParseButtonStates(t *testing.T) {
	body := make([]byte, buttonStatesLen)
	binary.LittleEndian.PutUint32(body[0:4], 1<<uint(ButtonCough)|1<<uint(ButtonFader2Mute))
	body[4] = 0xfe // pitch = -2
	body[7] = 0x05 // echo = 5
	body[8] = 0xff
	body[11] = 0x2a

	s, err := ParseButtonStates(body)
	require.NoError(t, err)

	assert.True(t, s.IsPressed(ButtonCough))
	assert.True(t, s.IsPressed(ButtonFader2Mute))
	assert.False(t, s.IsPressed(ButtonBleep))
	assert.EqualValues(t, -2, s.Encoders[coremodel.EncoderPitch])
	assert.EqualValues(t, 5, s.Encoders[coremodel.EncoderEcho])
	assert.EqualValues(t, 0xff, s.Volumes[coremodel.FaderA])
	assert.EqualValues(t, 0x2a, s.Volumes[coremodel.FaderD])
}

func TestParseButtonStatesShort(t *testing.T) {
	_, err := ParseButtonStates(make([]byte, buttonStatesLen-1))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestBuildButtonStatesSlots(t *testing.T) {
	body := BuildButtonStates(map[Button]LightState{
		ButtonFader1Mute: LightOn,
		ButtonCough:      LightFlashing,
	})

	assert.EqualValues(t, LightOn, body[4])       // fader1 mute 槽位
	assert.EqualValues(t, LightFlashing, body[23]) // cough 槽位
	// 未指定按键回落到暗光
	assert.EqualValues(t, LightDimmed, body[0])
}

func TestButtonSlotsDistinct(t *testing.T) {
	seen := map[int]bool{}
	for b := Button(0); b < ButtonCount; b++ {
		slot := buttonSlots[b]
		assert.False(t, seen[slot], "slot %d reused by %s", slot, b)
		assert.Less(t, slot, ButtonCount)
		seen[slot] = true
	}
}

func TestFaderMuteButton(t *testing.T) {
	assert.Equal(t, ButtonFader1Mute, FaderMuteButton(coremodel.FaderA))
	assert.Equal(t, ButtonFader4Mute, FaderMuteButton(coremodel.FaderD))
}
