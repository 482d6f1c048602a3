package xlr

import (
	"encoding/binary"
	"fmt"

	"github.com/taoyao-code/mixerd/internal/coremodel"
)

// Button 物理按键枚举。位序用于按键状态回读的位图，
// 槽位用于按键状态写命令的24字节布局。
type Button uint8

const (
	ButtonFader1Mute Button = iota
	ButtonFader2Mute
	ButtonFader3Mute
	ButtonFader4Mute
	ButtonBleep
	ButtonCough

	ButtonEffectSelect1
	ButtonEffectSelect2
	ButtonEffectSelect3
	ButtonEffectSelect4
	ButtonEffectSelect5
	ButtonEffectSelect6

	ButtonEffectFx
	ButtonEffectMegaphone
	ButtonEffectRobot
	ButtonEffectHardTune

	ButtonSamplerSelectA
	ButtonSamplerSelectB
	ButtonSamplerSelectC

	ButtonSamplerTopLeft
	ButtonSamplerTopRight
	ButtonSamplerBottomLeft
	ButtonSamplerBottomRight
	ButtonSamplerClear

	ButtonCount = 24
)

var buttonNames = [ButtonCount]string{
	"fader1_mute", "fader2_mute", "fader3_mute", "fader4_mute", "bleep", "cough",
	"effect_select1", "effect_select2", "effect_select3", "effect_select4",
	"effect_select5", "effect_select6",
	"effect_fx", "effect_megaphone", "effect_robot", "effect_hardtune",
	"sampler_select_a", "sampler_select_b", "sampler_select_c",
	"sampler_top_left", "sampler_top_right", "sampler_bottom_left",
	"sampler_bottom_right", "sampler_clear",
}

func (b Button) String() string {
	if int(b) < len(buttonNames) {
		return buttonNames[b]
	}
	return "unknown"
}

// FaderMuteButton 返回推子槽位对应的静音按键
func FaderMuteButton(f coremodel.Fader) Button {
	return ButtonFader1Mute + Button(f)
}

// slot 按键状态写命令中的槽位，与位序不同
var buttonSlots = [ButtonCount]int{
	ButtonFader1Mute:         4,
	ButtonFader2Mute:         9,
	ButtonFader3Mute:         14,
	ButtonFader4Mute:         19,
	ButtonBleep:              22,
	ButtonCough:              23,
	ButtonEffectSelect1:      0,
	ButtonEffectSelect2:      5,
	ButtonEffectSelect3:      11,
	ButtonEffectSelect4:      15,
	ButtonEffectSelect5:      1,
	ButtonEffectSelect6:      6,
	ButtonEffectFx:           21,
	ButtonEffectMegaphone:    20,
	ButtonEffectRobot:        10,
	ButtonEffectHardTune:     16,
	ButtonSamplerSelectA:     2,
	ButtonSamplerSelectB:     7,
	ButtonSamplerSelectC:     12,
	ButtonSamplerTopLeft:     3,
	ButtonSamplerTopRight:    8,
	ButtonSamplerBottomLeft:  17,
	ButtonSamplerBottomRight: 13,
	ButtonSamplerClear:       18,
}

// LightState 按键灯状态
type LightState uint8

const (
	LightOn       LightState = 0x01
	LightDimmed   LightState = 0x02
	LightFlashing LightState = 0x03
	LightOff      LightState = 0x04
)

// BuildButtonStates 编码按键灯状态写体（24字节，按槽位布局）。
// 未显式给出的按键使用 LightDimmed。
func BuildButtonStates(states map[Button]LightState) [ButtonCount]byte {
	var body [ButtonCount]byte
	for i := range body {
		body[i] = byte(LightDimmed)
	}
	for b, s := range states {
		if int(b) < ButtonCount {
			body[buttonSlots[b]] = byte(s)
		}
	}
	return body
}

// ButtonStates 按键状态读命令的解码结果
type ButtonStates struct {
	Pressed  uint32                       // 按下位图，bit = Button 位序
	Encoders [coremodel.EncoderCount]int8 // pitch, gender, reverb, echo
	Volumes  [coremodel.FaderCount]uint8  // 推子当前物理音量
}

// IsPressed 判断按键是否按下
func (s ButtonStates) IsPressed(b Button) bool {
	return s.Pressed&(1<<uint(b)) != 0
}

const buttonStatesLen = 12

// ParseButtonStates 解码按键状态回读体：
// u32按下位图 + 4个编码器有符号值 + 4个推子音量
func ParseButtonStates(body []byte) (ButtonStates, error) {
	if len(body) < buttonStatesLen {
		return ButtonStates{}, fmt.Errorf("%w: button states body length %d, want %d",
			ErrMalformedFrame, len(body), buttonStatesLen)
	}
	var s ButtonStates
	s.Pressed = binary.LittleEndian.Uint32(body[0:4])
	for i := 0; i < coremodel.EncoderCount; i++ {
		s.Encoders[i] = int8(body[4+i])
	}
	for i := 0; i < coremodel.FaderCount; i++ {
		s.Volumes[i] = body[8+i]
	}
	return s, nil
}
