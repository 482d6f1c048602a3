// Package reconcile 把期望态与状态镜像的差值转换为有序命令批次。
// 差分按域计算（路由、推子、静音、音量、编码器、效果、麦克风参数、颜色），
// 静音经行为规则折算成实际的路由覆盖与硬件静音位；结果对给定输入确定，
// 期望态与当前态相等时批次为空。
package reconcile

import (
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/taoyao-code/mixerd/internal/coremodel"
	"github.com/taoyao-code/mixerd/internal/devstate"
	"github.com/taoyao-code/mixerd/internal/profile"
	"github.com/taoyao-code/mixerd/internal/protocol/xlr"
	"github.com/taoyao-code/mixerd/internal/rules"
)

// ErrUnsupportedCommand 期望态要求设备型号不具备的能力。
// 调和绝不生成这类命令，出现该错误说明期望态与能力集冲突。
var ErrUnsupportedCommand = errors.New("command unsupported by device variant")

// Desired 一次调和的目标状态。与镜像快照同形，但静音状态允许携带
// 瞬态的全量静音（长按升级的结果由工作者折入目标态，不落盘）。
type Desired struct {
	Routing coremodel.RoutingMatrix
	Faders  [coremodel.FaderCount]coremodel.Channel
	Volumes [coremodel.ChannelCount]uint8
	Mutes   [coremodel.ChannelCount]coremodel.MuteState
	Cough   coremodel.MuteState

	Encoders  [coremodel.EncoderCount]int8
	Colours   map[xlr.ColourTarget]xlr.ColourPair
	Effects   map[xlr.EffectKey]int32
	MicParams map[xlr.MicParamKey]xlr.MicParamValue
}

// Clone 深拷贝目标态，供回滚失败的修改使用
func (d Desired) Clone() Desired {
	out := d
	out.Colours = maps.Clone(d.Colours)
	out.Effects = maps.Clone(d.Effects)
	out.MicParams = maps.Clone(d.MicParams)
	return out
}

// FromProfile 由持久化期望态构造调和目标。咳嗽键初始关闭。
func FromProfile(p profile.Profile) Desired {
	d := Desired{
		Routing:   p.Routing,
		Faders:    p.Faders,
		Volumes:   p.Volumes,
		Encoders:  p.Encoders,
		Colours:   maps.Clone(p.Colours),
		Effects:   maps.Clone(p.Effects),
		MicParams: maps.Clone(p.MicParams),
	}
	for ch := coremodel.Channel(0); ch < coremodel.ChannelCount; ch++ {
		d.Mutes[ch] = p.BaseMute(ch)
	}
	return d
}

// Reconcile 计算从 current 到 desired 的命令批次。
// 批次顺序：路由（含覆盖建立/解除）→ 硬件静音位 → 静音记账 →
// 推子 → 音量 → 编码器 → 效果 → 麦克风参数 → 颜色。
func Reconcile(desired Desired, current devstate.Snapshot) (Batch, error) {
	caps := current.Hardware.Capabilities

	if err := checkCapabilities(desired, caps); err != nil {
		return nil, err
	}
	mutes, cough, err := normalizeMutes(desired)
	if err != nil {
		return nil, err
	}

	var batch Batch

	// 路由：对每个源通道比较有效边集与覆盖记录，最多生成一条路由写。
	// 覆盖在其修饰的基础路由写入同一条命令中建立，天然满足先后约束。
	for in := coremodel.InputChannel(0); in < coremodel.InputCount; in++ {
		ch := coremodel.ChannelFor(in)
		targets := rules.OverlayTargets(ch, mutes[ch], cough)

		desBase := desired.Routing[in]
		effective := rules.EffectiveRouting(ch, desBase, mutes[ch], cough)
		var wantOv *devstate.Overlay
		if desBase&targets != 0 {
			wantOv = &devstate.Overlay{Captured: desBase, Targets: targets}
		}

		curBase := current.Routing[in]
		curOv, hasOv := current.Overlays[in]
		curEffective := curBase
		if hasOv {
			curEffective = curBase &^ curOv.Targets
		}

		same := effective == curEffective && desBase == curBase &&
			overlayEqual(wantOv, curOv, hasOv)
		if !same {
			batch = append(batch, WriteRouting{
				Input:   in,
				Outputs: effective,
				Base:    desBase,
				Overlay: wantOv,
			})
		}
	}

	// 硬件静音位与静音记账
	for ch := coremodel.Channel(0); ch < coremodel.ChannelCount; ch++ {
		desHW := rules.HardwareMute(ch, mutes[ch], cough)
		curHW := rules.HardwareMute(ch, current.Mutes[ch], current.Cough)
		if desHW != curHW {
			batch = append(batch, SetChannelState{Channel: ch, Muted: desHW})
		}
		if mutes[ch] != current.Mutes[ch] {
			batch = append(batch, RecordMute{Channel: ch, State: mutes[ch]})
		}
	}
	if cough != current.Cough {
		batch = append(batch, RecordCough{State: cough})
	}

	if desired.Faders != current.Faders {
		op := AssignFaders{Faders: desired.Faders}
		for slot := coremodel.Fader(0); slot < coremodel.FaderCount; slot++ {
			if desired.Faders[slot] != current.Faders[slot] {
				op.Slots = append(op.Slots, slot)
			}
		}
		batch = append(batch, op)
	}

	// 音量：无电动推子的型号不下发推子位置命令，静音只改逻辑状态
	if rules.AllowsVolumeCommands(caps) {
		for ch := coremodel.Channel(0); ch < coremodel.ChannelCount; ch++ {
			if desired.Volumes[ch] != current.Volumes[ch] {
				batch = append(batch, SetVolume{Channel: ch, Volume: desired.Volumes[ch]})
			}
		}
	}

	for e := coremodel.Encoder(0); e < coremodel.EncoderCount; e++ {
		if desired.Encoders[e] != current.Encoders[e] {
			batch = append(batch, SetEncoder{Encoder: e, Value: desired.Encoders[e]})
		}
	}

	if op, changed := diffEffects(desired.Effects, current.Effects); changed {
		batch = append(batch, op)
	}
	if op, changed := diffMicParams(desired.MicParams, current.MicParams); changed {
		batch = append(batch, op)
	}
	if op, changed := diffColours(desired.Colours, current.Colours); changed {
		batch = append(batch, op)
	}

	return batch, nil
}

// checkCapabilities 拒绝与型号能力冲突的期望态
func checkCapabilities(desired Desired, caps coremodel.Capabilities) error {
	if !rules.AllowsColourCommands(caps) && len(desired.Colours) > 0 {
		return fmt.Errorf("%w: colour map", ErrUnsupportedCommand)
	}
	if !rules.AllowsEffectCommands(caps) && len(desired.Effects) > 0 {
		return fmt.Errorf("%w: effect params", ErrUnsupportedCommand)
	}
	if !rules.AllowsEffectCommands(caps) {
		for e := coremodel.Encoder(0); e < coremodel.EncoderCount; e++ {
			if desired.Encoders[e] != 0 {
				return fmt.Errorf("%w: encoder %s", ErrUnsupportedCommand, e)
			}
		}
	}
	return nil
}

func normalizeMutes(desired Desired) ([coremodel.ChannelCount]coremodel.MuteState, coremodel.MuteState, error) {
	var mutes [coremodel.ChannelCount]coremodel.MuteState
	for ch := coremodel.Channel(0); ch < coremodel.ChannelCount; ch++ {
		normalized, err := desired.Mutes[ch].Normalize()
		if err != nil {
			return mutes, coremodel.MuteState{}, fmt.Errorf("channel %s: %w", ch, err)
		}
		mutes[ch] = normalized
	}
	cough, err := desired.Cough.Normalize()
	if err != nil {
		return mutes, coremodel.MuteState{}, fmt.Errorf("cough: %w", err)
	}
	return mutes, cough, nil
}

func overlayEqual(want *devstate.Overlay, cur devstate.Overlay, hasCur bool) bool {
	if want == nil {
		return !hasCur
	}
	return hasCur && *want == cur
}

func diffEffects(desired map[xlr.EffectKey]int32, current map[xlr.EffectKey]int32) (WriteEffects, bool) {
	var changed []xlr.EffectValue
	for key, val := range desired {
		if cur, ok := current[key]; !ok || cur != val {
			changed = append(changed, xlr.EffectValue{Key: key, Value: val})
		}
	}
	if len(changed) == 0 {
		return WriteEffects{}, false
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].Key < changed[j].Key })
	return WriteEffects{Values: changed}, true
}

func diffMicParams(desired, current map[xlr.MicParamKey]xlr.MicParamValue) (WriteMicParams, bool) {
	var changed []xlr.MicParamValue
	for key, val := range desired {
		if cur, ok := current[key]; !ok || cur != val {
			changed = append(changed, val)
		}
	}
	if len(changed) == 0 {
		return WriteMicParams{}, false
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].Key < changed[j].Key })
	return WriteMicParams{Params: changed}, true
}

func diffColours(desired, current map[xlr.ColourTarget]xlr.ColourPair) (WriteColourMap, bool) {
	for target, pair := range desired {
		if cur, ok := current[target]; !ok || cur != pair {
			return WriteColourMap{Colours: desired}, true
		}
	}
	return WriteColourMap{}, false
}
