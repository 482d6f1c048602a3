// Package rules 封装硬件行为语义的纯函数：静音路由覆盖、咳嗽键独立性、
// 长按升级、推子换位与能力门控。不接触传输层，便于单测穷举。
package rules

import (
	"time"

	"github.com/taoyao-code/mixerd/internal/coremodel"
)

// MinVolumeThreshold 解除静音时恢复旧音量的阈值：
// 当前音量高于该值说明用户已手动调整，不再回填
const MinVolumeThreshold uint8 = 6

// OverlayTargets 通道静音折算出的待切断目的集。
// 麦克风叠加咳嗽键目标，其余通道忽略咳嗽键。
func OverlayTargets(ch coremodel.Channel, mute, cough coremodel.MuteState) coremodel.OutputSet {
	var targets coremodel.OutputSet
	if !mute.Unmuted() {
		targets |= mute.Targets
	}
	if ch == coremodel.ChannelMic && !cough.Unmuted() {
		targets |= cough.Targets
	}
	return targets
}

// EffectiveRouting 计算静音状态叠加后的硬件路由边集。
// 基础静音把通道到目标集的边切断；全量静音保持边切断（硬件静音另行下发）。
func EffectiveRouting(ch coremodel.Channel, base coremodel.OutputSet, mute, cough coremodel.MuteState) coremodel.OutputSet {
	return base &^ OverlayTargets(ch, mute, cough)
}

// EffectiveMicMute 麦克风的有效静音：推子静音与咳嗽键的逻辑或。
// 任一变化后都须重算，切换其中一个绝不清除另一个。
func EffectiveMicMute(mute, cough coremodel.MuteState) bool {
	return !mute.Unmuted() || !cough.Unmuted()
}

// HardwareMute 计算通道应下发的硬件静音位。
// 可路由通道的基础静音由路由覆盖实现，不动硬件位；全量静音或
// 无目标集的静音只能硬件静音。麦克风对推子静音与咳嗽键分别判定后取或。
// 无路由源的通道任何静音都走硬件位。
func HardwareMute(ch coremodel.Channel, mute, cough coremodel.MuteState) bool {
	if ch == coremodel.ChannelMic {
		return routableHardwareMute(mute) || routableHardwareMute(cough)
	}
	if _, routable := coremodel.InputFor(ch); !routable {
		return !mute.Unmuted()
	}
	return routableHardwareMute(mute)
}

func routableHardwareMute(s coremodel.MuteState) bool {
	if s.Unmuted() {
		return false
	}
	return s.Mode == coremodel.MuteToAll || s.Targets.Empty()
}

// HoldOutcome 根据按住时长决定静音按键的结果状态。
// 快速按下（时长 < threshold）做开关切换；按住达到阈值升级为全量静音。
// configured 为该通道在配置中的静音目标集。
func HoldOutcome(current coremodel.MuteState, configured coremodel.OutputSet, held, threshold time.Duration) coremodel.MuteState {
	if held >= threshold {
		targets := current.Targets
		if targets.Empty() {
			targets = configured
		}
		if targets.Empty() {
			targets = coremodel.AllOutputs()
		}
		return coremodel.MuteState{Mode: coremodel.MuteToAll, Targets: targets}
	}
	if current.Unmuted() {
		return coremodel.MuteState{Mode: coremodel.MuteToTargets, Targets: configured}
	}
	return coremodel.MuteState{}
}

// PlanFaderAssign 计算把通道指派到槽位后的完整推子布局。
// 目标槽位已有其他通道时双方换位，而不是把原通道挤出槽位；
// 换位不附带任何静音状态变化。
func PlanFaderAssign(faders [coremodel.FaderCount]coremodel.Channel, slot coremodel.Fader, ch coremodel.Channel) [coremodel.FaderCount]coremodel.Channel {
	if !slot.Valid() {
		return faders
	}
	prev := faders[slot]
	if prev == ch {
		return faders
	}
	for i, c := range faders {
		if c == ch {
			faders[i] = prev
			break
		}
	}
	faders[slot] = ch
	return faders
}

// VolumeOnMute 静音时的音量侧效：仅电动推子型号写音量0（推子下行动画）。
// 返回 (音量值, 是否需要下发)。
func VolumeOnMute(caps coremodel.Capabilities) (uint8, bool) {
	if !caps.MotorizedFaders {
		return 0, false
	}
	return 0, true
}

// VolumeOnUnmute 解除静音时的音量恢复：仅电动推子型号，且当前音量
// 未被手动调高（≤ 阈值）时恢复静音前音量。
func VolumeOnUnmute(caps coremodel.Capabilities, currentVolume, savedVolume uint8) (uint8, bool) {
	if !caps.MotorizedFaders {
		return 0, false
	}
	if currentVolume > MinVolumeThreshold {
		return 0, false
	}
	return savedVolume, true
}

// AllowsVolumeCommands 能力门控：无电动推子的型号不得下发音量指令
func AllowsVolumeCommands(caps coremodel.Capabilities) bool {
	return caps.MotorizedFaders
}

// AllowsColourCommands 能力门控：颜色表/涂鸦屏仅全功能型号支持
func AllowsColourCommands(caps coremodel.Capabilities) bool {
	return caps.ColourTargets
}

// AllowsEffectCommands 能力门控：效果参数仅带效果区的型号支持
func AllowsEffectCommands(caps coremodel.Capabilities) bool {
	return caps.EffectEncoders
}
