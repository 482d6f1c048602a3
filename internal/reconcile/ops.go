package reconcile

import (
	"fmt"

	"github.com/taoyao-code/mixerd/internal/coremodel"
	"github.com/taoyao-code/mixerd/internal/devstate"
	"github.com/taoyao-code/mixerd/internal/protocol/xlr"
)

// Wire 一条待下发的线上命令：命令字 + 体。序列号由传输层填充。
type Wire struct {
	Cmd  xlr.Command
	Body []byte
}

// Op 批次中的一个逻辑操作。Wires 展开为零到多条线上命令；
// Apply 在全部命令确认后把结果记入状态镜像。
type Op interface {
	Describe() string
	Wires() ([]Wire, error)
	Apply(st *devstate.State) error
}

// Batch 有序命令批次，按切片顺序逐条下发
type Batch []Op

// Empty 判断批次是否为空
func (b Batch) Empty() bool { return len(b) == 0 }

// WriteRouting 写一个源通道的路由表。Outputs 为写入硬件的有效边集，
// Base 为记入镜像的基础边集，Overlay 记录生效中的静音覆盖（nil 表示清除）。
// 有效边集与基础边集的差值即覆盖切断的边。
type WriteRouting struct {
	Input   coremodel.InputChannel
	Outputs coremodel.OutputSet
	Base    coremodel.OutputSet
	Overlay *devstate.Overlay
}

func (op WriteRouting) Describe() string {
	return fmt.Sprintf("routing[%s]=0x%02x", op.Input, uint8(op.Outputs))
}

// Wires 每个逻辑源展开为左右两路写命令
func (op WriteRouting) Wires() ([]Wire, error) {
	right, left, err := xlr.WireInputsFor(op.Input)
	if err != nil {
		return nil, err
	}
	rightBody, leftBody := xlr.BuildRoutingBodies(op.Outputs)
	return []Wire{
		{Cmd: xlr.CmdSetRouting(right), Body: rightBody[:]},
		{Cmd: xlr.CmdSetRouting(left), Body: leftBody[:]},
	}, nil
}

func (op WriteRouting) Apply(st *devstate.State) error {
	if err := st.ApplyRouting(op.Input, op.Base); err != nil {
		return err
	}
	if op.Overlay != nil {
		return st.ApplyOverlay(op.Input, *op.Overlay)
	}
	st.ClearOverlay(op.Input)
	return nil
}

// AssignFaders 推子指派批次。Faders 携带完整布局供镜像一次性校验，
// Slots 列出实际需要下发的槽位（仅变更项）。
type AssignFaders struct {
	Faders [coremodel.FaderCount]coremodel.Channel
	Slots  []coremodel.Fader
}

func (op AssignFaders) Describe() string {
	return fmt.Sprintf("faders=%v", op.Faders)
}

func (op AssignFaders) Wires() ([]Wire, error) {
	wires := make([]Wire, 0, len(op.Slots))
	for _, slot := range op.Slots {
		if !slot.Valid() {
			return nil, fmt.Errorf("reconcile: invalid fader slot %d", slot)
		}
		wires = append(wires, Wire{
			Cmd:  xlr.CmdSetFader(slot),
			Body: []byte{byte(op.Faders[slot]), 0, 0, 0},
		})
	}
	return wires, nil
}

func (op AssignFaders) Apply(st *devstate.State) error {
	return st.ApplyFaders(op.Faders)
}

// SetVolume 写通道音量
type SetVolume struct {
	Channel coremodel.Channel
	Volume  uint8
}

func (op SetVolume) Describe() string {
	return fmt.Sprintf("volume[%s]=%d", op.Channel, op.Volume)
}

func (op SetVolume) Wires() ([]Wire, error) {
	return []Wire{{Cmd: xlr.CmdSetVolume(op.Channel), Body: []byte{op.Volume}}}, nil
}

func (op SetVolume) Apply(st *devstate.State) error {
	return st.ApplyVolume(op.Channel, op.Volume)
}

// SetChannelState 写通道硬件静音位
type SetChannelState struct {
	Channel coremodel.Channel
	Muted   bool
}

func (op SetChannelState) Describe() string {
	return fmt.Sprintf("channel_state[%s] muted=%t", op.Channel, op.Muted)
}

func (op SetChannelState) Wires() ([]Wire, error) {
	state := byte(0)
	if op.Muted {
		state = 1
	}
	return []Wire{{Cmd: xlr.CmdSetChannelState(op.Channel), Body: []byte{state}}}, nil
}

func (op SetChannelState) Apply(*devstate.State) error { return nil }

// RecordMute 纯镜像记账：通道逻辑静音状态。不产生线上命令，
// 硬件效果由同批次的路由写与通道状态写承担。
type RecordMute struct {
	Channel coremodel.Channel
	State   coremodel.MuteState
}

func (op RecordMute) Describe() string {
	return fmt.Sprintf("mute[%s]=%s", op.Channel, op.State.Mode)
}

func (op RecordMute) Wires() ([]Wire, error) { return nil, nil }

func (op RecordMute) Apply(st *devstate.State) error {
	return st.ApplyMute(op.Channel, op.State)
}

// RecordCough 纯镜像记账：咳嗽键静音状态
type RecordCough struct {
	State coremodel.MuteState
}

func (op RecordCough) Describe() string {
	return fmt.Sprintf("cough=%s", op.State.Mode)
}

func (op RecordCough) Wires() ([]Wire, error) { return nil, nil }

func (op RecordCough) Apply(st *devstate.State) error {
	return st.ApplyCough(op.State)
}

// SetEncoder 写编码器值
type SetEncoder struct {
	Encoder coremodel.Encoder
	Value   int8
}

func (op SetEncoder) Describe() string {
	return fmt.Sprintf("encoder[%s]=%d", op.Encoder, op.Value)
}

func (op SetEncoder) Wires() ([]Wire, error) {
	return []Wire{{Cmd: xlr.CmdSetEncoderValue(op.Encoder), Body: []byte{byte(op.Value)}}}, nil
}

func (op SetEncoder) Apply(st *devstate.State) error {
	st.ApplyEncoder(op.Encoder, op.Value)
	return nil
}

// WriteEffects 写一组效果参数记录
type WriteEffects struct {
	Values []xlr.EffectValue
}

func (op WriteEffects) Describe() string {
	return fmt.Sprintf("effects(%d)", len(op.Values))
}

func (op WriteEffects) Wires() ([]Wire, error) {
	body, err := xlr.EncodeEffects(op.Values)
	if err != nil {
		return nil, err
	}
	return []Wire{{Cmd: xlr.CmdSetEffectParams(), Body: body}}, nil
}

func (op WriteEffects) Apply(st *devstate.State) error {
	for _, v := range op.Values {
		st.ApplyEffect(v.Key, v.Value)
	}
	return nil
}

// WriteMicParams 写一组麦克风参数记录
type WriteMicParams struct {
	Params []xlr.MicParamValue
}

func (op WriteMicParams) Describe() string {
	return fmt.Sprintf("mic_params(%d)", len(op.Params))
}

func (op WriteMicParams) Wires() ([]Wire, error) {
	body, err := xlr.EncodeMicParams(op.Params)
	if err != nil {
		return nil, err
	}
	return []Wire{{Cmd: xlr.CmdSetMicParams(), Body: body}}, nil
}

func (op WriteMicParams) Apply(st *devstate.State) error {
	for _, p := range op.Params {
		st.ApplyMicParam(p)
	}
	return nil
}

// WriteColourMap 整表写颜色映射
type WriteColourMap struct {
	Colours map[xlr.ColourTarget]xlr.ColourPair
}

func (op WriteColourMap) Describe() string {
	return fmt.Sprintf("colour_map(%d)", len(op.Colours))
}

func (op WriteColourMap) Wires() ([]Wire, error) {
	body, err := xlr.BuildColourMap(op.Colours)
	if err != nil {
		return nil, err
	}
	return []Wire{{Cmd: xlr.CmdSetColourMap(), Body: body[:]}}, nil
}

func (op WriteColourMap) Apply(st *devstate.State) error {
	for target, pair := range op.Colours {
		st.ApplyColour(target, pair)
	}
	return nil
}

// WriteButtonLights 写按键灯状态。派生的视觉反馈，不记入镜像。
// 由设备工作者在静音状态变化后单独下发，不属于调和差分的一部分。
type WriteButtonLights struct {
	States map[xlr.Button]xlr.LightState
}

func (op WriteButtonLights) Describe() string {
	return fmt.Sprintf("button_lights(%d)", len(op.States))
}

func (op WriteButtonLights) Wires() ([]Wire, error) {
	body := xlr.BuildButtonStates(op.States)
	return []Wire{{Cmd: xlr.CmdSetButtonStates(), Body: body[:]}}, nil
}

func (op WriteButtonLights) Apply(*devstate.State) error { return nil }

// SetFaderDisplay 写推子表显示模式（仅全功能型号），初始化时由工作者下发
type SetFaderDisplay struct {
	Fader coremodel.Fader
	Mode  uint8
}

func (op SetFaderDisplay) Describe() string {
	return fmt.Sprintf("fader_display[%s]=%d", op.Fader, op.Mode)
}

func (op SetFaderDisplay) Wires() ([]Wire, error) {
	return []Wire{{Cmd: xlr.CmdSetFaderDisplay(op.Fader), Body: []byte{op.Mode}}}, nil
}

func (op SetFaderDisplay) Apply(*devstate.State) error { return nil }

// WriteScribble 写推子涂鸦屏位图（仅全功能型号），初始化时由工作者下发
type WriteScribble struct {
	Fader coremodel.Fader
	Data  []byte
}

func (op WriteScribble) Describe() string {
	return fmt.Sprintf("scribble[%s]", op.Fader)
}

func (op WriteScribble) Wires() ([]Wire, error) {
	if len(op.Data) != xlr.ScribbleLen {
		return nil, fmt.Errorf("reconcile: scribble bitmap length %d, want %d",
			len(op.Data), xlr.ScribbleLen)
	}
	return []Wire{{Cmd: xlr.CmdSetScribble(op.Fader), Body: op.Data}}, nil
}

func (op WriteScribble) Apply(*devstate.State) error { return nil }
