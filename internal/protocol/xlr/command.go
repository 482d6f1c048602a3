package xlr

import (
	"fmt"

	"github.com/taoyao-code/mixerd/internal/coremodel"
)

// Class 命令类别，命令字的高20位右移12位后的值
type Class uint16

const (
	ClassSystemInfo       Class = 0x000
	ClassGetButtonStates  Class = 0x800
	ClassSetEffectParams  Class = 0x801
	ClassSetScribble      Class = 0x802
	ClassSetColourMap     Class = 0x803
	ClassSetRouting       Class = 0x804
	ClassSetFader         Class = 0x805
	ClassSetVolume        Class = 0x806
	ClassResetSeq         Class = 0x807
	ClassSetButtonStates  Class = 0x808
	ClassSetChannelState  Class = 0x809
	ClassSetEncoderValue  Class = 0x80a
	ClassSetMicParams     Class = 0x80b
	ClassGetMicLevel      Class = 0x80c
	ClassGetHardwareInfo  Class = 0x80f
	ClassSetFaderDisplay  Class = 0x814
)

// SystemInfo 子命令
const (
	SystemInfoSupportsDCP uint16 = 1
	SystemInfoFirmware    uint16 = 2
)

// HardwareInfo 子命令
const (
	HardwareInfoSerial   uint16 = 0
	HardwareInfoFirmware uint16 = 1
)

func (c Class) String() string {
	switch c {
	case ClassSystemInfo:
		return "system_info"
	case ClassGetButtonStates:
		return "get_button_states"
	case ClassSetEffectParams:
		return "set_effect_params"
	case ClassSetScribble:
		return "set_scribble"
	case ClassSetColourMap:
		return "set_colour_map"
	case ClassSetRouting:
		return "set_routing"
	case ClassSetFader:
		return "set_fader"
	case ClassSetVolume:
		return "set_volume"
	case ClassResetSeq:
		return "reset_seq"
	case ClassSetButtonStates:
		return "set_button_states"
	case ClassSetChannelState:
		return "set_channel_state"
	case ClassSetEncoderValue:
		return "set_encoder_value"
	case ClassSetMicParams:
		return "set_mic_params"
	case ClassGetMicLevel:
		return "get_mic_level"
	case ClassGetHardwareInfo:
		return "get_hardware_info"
	case ClassSetFaderDisplay:
		return "set_fader_display"
	}
	return fmt.Sprintf("class_0x%03x", uint16(c))
}

// Command 命令字：class<<12 | sub。sub 通常是通道/推子/编码器ID。
type Command struct {
	Class Class
	Sub   uint16
}

// Word 组装32位命令字
func (c Command) Word() uint32 {
	return uint32(c.Class)<<12 | uint32(c.Sub&0xFFF)
}

// CommandFromWord 拆解32位命令字
func CommandFromWord(w uint32) Command {
	return Command{Class: Class(w >> 12), Sub: uint16(w & 0xFFF)}
}

func (c Command) String() string {
	return fmt.Sprintf("%s/%d", c.Class, c.Sub)
}

// 常用命令构造器。sub 段携带寻址信息，体布局见各编码函数。

func CmdSetChannelState(ch coremodel.Channel) Command {
	return Command{Class: ClassSetChannelState, Sub: uint16(ch)}
}

func CmdSetVolume(ch coremodel.Channel) Command {
	return Command{Class: ClassSetVolume, Sub: uint16(ch)}
}

func CmdSetFader(f coremodel.Fader) Command {
	return Command{Class: ClassSetFader, Sub: uint16(f)}
}

func CmdSetRouting(in WireInput) Command {
	return Command{Class: ClassSetRouting, Sub: uint16(in)}
}

func CmdSetEncoderValue(e coremodel.Encoder) Command {
	return Command{Class: ClassSetEncoderValue, Sub: uint16(e)}
}

func CmdSetScribble(f coremodel.Fader) Command {
	return Command{Class: ClassSetScribble, Sub: uint16(f)}
}

func CmdSetFaderDisplay(f coremodel.Fader) Command {
	return Command{Class: ClassSetFaderDisplay, Sub: uint16(f)}
}

func CmdSetEffectParams() Command { return Command{Class: ClassSetEffectParams} }
func CmdSetMicParams() Command    { return Command{Class: ClassSetMicParams} }
func CmdSetColourMap() Command    { return Command{Class: ClassSetColourMap} }
func CmdSetButtonStates() Command { return Command{Class: ClassSetButtonStates} }
func CmdGetButtonStates() Command { return Command{Class: ClassGetButtonStates} }
func CmdGetMicLevel() Command     { return Command{Class: ClassGetMicLevel} }
func CmdResetSeq() Command        { return Command{Class: ClassResetSeq} }

func CmdGetHardwareInfo(sub uint16) Command {
	return Command{Class: ClassGetHardwareInfo, Sub: sub}
}

func CmdSystemInfo(sub uint16) Command {
	return Command{Class: ClassSystemInfo, Sub: sub}
}
