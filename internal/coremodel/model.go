package coremodel

// DeviceSerial 设备序列号，全局唯一设备标识
type DeviceSerial string

// Channel 混音通道标识，取值与硬件通道ID一致
type Channel uint8

const (
	ChannelMic Channel = iota
	ChannelLineIn
	ChannelConsole
	ChannelSystem
	ChannelGame
	ChannelChat
	ChannelSample
	ChannelMusic
	ChannelHeadphones
	ChannelMicMonitor
	ChannelLineOut

	ChannelCount = 11
)

var channelNames = [ChannelCount]string{
	"mic", "line_in", "console", "system", "game", "chat",
	"sample", "music", "headphones", "mic_monitor", "line_out",
}

func (c Channel) String() string {
	if int(c) < len(channelNames) {
		return channelNames[c]
	}
	return "unknown"
}

// Valid 判断通道ID是否在硬件通道表内
func (c Channel) Valid() bool { return int(c) < ChannelCount }

// ChannelByName 按名称查找通道（IPC表示用）
func ChannelByName(name string) (Channel, bool) {
	for i, n := range channelNames {
		if n == name {
			return Channel(i), true
		}
	}
	return 0, false
}

// Fader 物理推子槽位，A-D 依次为 0-3
type Fader uint8

const (
	FaderA Fader = iota
	FaderB
	FaderC
	FaderD

	FaderCount = 4
)

func (f Fader) String() string {
	switch f {
	case FaderA:
		return "A"
	case FaderB:
		return "B"
	case FaderC:
		return "C"
	case FaderD:
		return "D"
	}
	return "unknown"
}

// Valid 判断推子槽位是否合法
func (f Fader) Valid() bool { return f < FaderCount }

// FaderByName 按名称查找推子槽位
func FaderByName(name string) (Fader, bool) {
	switch name {
	case "A", "a":
		return FaderA, true
	case "B", "b":
		return FaderB, true
	case "C", "c":
		return FaderC, true
	case "D", "d":
		return FaderD, true
	}
	return 0, false
}

// Encoder 旋钮编码器标识，顺序与按键状态回读报文中的偏移一致
type Encoder uint8

const (
	EncoderPitch Encoder = iota
	EncoderGender
	EncoderReverb
	EncoderEcho

	EncoderCount = 4
)

func (e Encoder) String() string {
	switch e {
	case EncoderPitch:
		return "pitch"
	case EncoderGender:
		return "gender"
	case EncoderReverb:
		return "reverb"
	case EncoderEcho:
		return "echo"
	}
	return "unknown"
}

// InputChannel 路由矩阵的源通道（立体声对在编解码层展开为左右两路）
type InputChannel uint8

const (
	InputMic InputChannel = iota
	InputChat
	InputMusic
	InputGame
	InputConsole
	InputLineIn
	InputSystem
	InputSamples

	InputCount = 8
)

var inputNames = [InputCount]string{
	"mic", "chat", "music", "game", "console", "line_in", "system", "samples",
}

func (i InputChannel) String() string {
	if int(i) < len(inputNames) {
		return inputNames[i]
	}
	return "unknown"
}

// Valid 判断源通道是否合法
func (i InputChannel) Valid() bool { return int(i) < InputCount }

// OutputChannel 路由矩阵的目的通道
type OutputChannel uint8

const (
	OutputHeadphones OutputChannel = iota
	OutputBroadcastMix
	OutputLineOut
	OutputChatMic
	OutputSampler

	OutputCount = 5
)

var outputNames = [OutputCount]string{
	"headphones", "broadcast_mix", "line_out", "chat_mic", "sampler",
}

func (o OutputChannel) String() string {
	if int(o) < len(outputNames) {
		return outputNames[o]
	}
	return "unknown"
}

// Valid 判断目的通道是否合法
func (o OutputChannel) Valid() bool { return int(o) < OutputCount }

// OutputByName 按名称查找目的通道
func OutputByName(name string) (OutputChannel, bool) {
	for i, n := range outputNames {
		if n == name {
			return OutputChannel(i), true
		}
	}
	return 0, false
}

// InputByName 按名称查找源通道
func InputByName(name string) (InputChannel, bool) {
	for i, n := range inputNames {
		if n == name {
			return InputChannel(i), true
		}
	}
	return 0, false
}

// OutputSet 目的通道集合（位图）
type OutputSet uint8

// NewOutputSet 由若干目的通道构造集合
func NewOutputSet(outputs ...OutputChannel) OutputSet {
	var s OutputSet
	for _, o := range outputs {
		s = s.Add(o)
	}
	return s
}

// AllOutputs 返回包含全部目的通道的集合
func AllOutputs() OutputSet {
	return OutputSet(1<<OutputCount) - 1
}

// Has 判断集合是否包含指定目的通道
func (s OutputSet) Has(o OutputChannel) bool { return s&(1<<o) != 0 }

// Add 返回加入目的通道后的集合
func (s OutputSet) Add(o OutputChannel) OutputSet { return s | (1 << o) }

// Remove 返回移除目的通道后的集合
func (s OutputSet) Remove(o OutputChannel) OutputSet { return s &^ (1 << o) }

// Empty 判断集合是否为空
func (s OutputSet) Empty() bool { return s == 0 }

// Outputs 按枚举顺序展开集合成员
func (s OutputSet) Outputs() []OutputChannel {
	var out []OutputChannel
	for o := OutputChannel(0); o < OutputCount; o++ {
		if s.Has(o) {
			out = append(out, o)
		}
	}
	return out
}
