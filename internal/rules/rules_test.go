package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taoyao-code/mixerd/internal/coremodel"
)

func TestEffectiveRouting(t *testing.T) {
	base := coremodel.NewOutputSet(coremodel.OutputHeadphones, coremodel.OutputBroadcastMix, coremodel.OutputLineOut)
	coughOn := coremodel.MuteState{Mode: coremodel.MuteToTargets, Targets: coremodel.NewOutputSet(coremodel.OutputBroadcastMix)}

	tests := []struct {
		name  string
		ch    coremodel.Channel
		mute  coremodel.MuteState
		cough coremodel.MuteState
		want  coremodel.OutputSet
	}{
		{"unmuted", coremodel.ChannelMusic, coremodel.MuteState{}, coremodel.MuteState{}, base},
		{
			"to_targets", coremodel.ChannelMusic,
			coremodel.MuteState{Mode: coremodel.MuteToTargets, Targets: coremodel.NewOutputSet(coremodel.OutputHeadphones)},
			coremodel.MuteState{},
			coremodel.NewOutputSet(coremodel.OutputBroadcastMix, coremodel.OutputLineOut),
		},
		{
			"to_all_keeps_target_edges_cut", coremodel.ChannelMusic,
			coremodel.MuteState{Mode: coremodel.MuteToAll, Targets: coremodel.NewOutputSet(coremodel.OutputHeadphones)},
			coremodel.MuteState{},
			coremodel.NewOutputSet(coremodel.OutputBroadcastMix, coremodel.OutputLineOut),
		},
		{
			"target_not_in_base", coremodel.ChannelMusic,
			coremodel.MuteState{Mode: coremodel.MuteToTargets, Targets: coremodel.NewOutputSet(coremodel.OutputSampler)},
			coremodel.MuteState{},
			base,
		},
		{
			"cough_cuts_mic_edges", coremodel.ChannelMic,
			coremodel.MuteState{}, coughOn,
			coremodel.NewOutputSet(coremodel.OutputHeadphones, coremodel.OutputLineOut),
		},
		{
			"cough_ignored_off_mic", coremodel.ChannelMusic,
			coremodel.MuteState{}, coughOn,
			base,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveRouting(tt.ch, base, tt.mute, tt.cough))
		})
	}
}

func TestEffectiveMicMuteIsOR(t *testing.T) {
	toTargets := coremodel.MuteState{Mode: coremodel.MuteToTargets, Targets: coremodel.NewOutputSet(coremodel.OutputHeadphones)}
	coughOn := coremodel.MuteState{Mode: coremodel.MuteToTargets}

	// 组合后的有效静音在任何时刻都是两者的逻辑或
	tests := []struct {
		name  string
		mute  coremodel.MuteState
		cough coremodel.MuteState
		want  bool
	}{
		{"both_off", coremodel.MuteState{}, coremodel.MuteState{}, false},
		{"fader_only", toTargets, coremodel.MuteState{}, true},
		{"cough_only", coremodel.MuteState{}, coughOn, true},
		{"both", toTargets, coughOn, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveMicMute(tt.mute, tt.cough))
		})
	}
}

func TestHardwareMute(t *testing.T) {
	toTargets := coremodel.MuteState{Mode: coremodel.MuteToTargets, Targets: coremodel.NewOutputSet(coremodel.OutputHeadphones)}
	toAll := coremodel.MuteState{Mode: coremodel.MuteToAll, Targets: coremodel.NewOutputSet(coremodel.OutputHeadphones)}
	bare := coremodel.MuteState{Mode: coremodel.MuteToTargets}

	// 可路由通道：带目标的基础静音走路由覆盖，不动硬件位
	assert.False(t, HardwareMute(coremodel.ChannelMusic, toTargets, coremodel.MuteState{}))
	assert.True(t, HardwareMute(coremodel.ChannelMusic, toAll, coremodel.MuteState{}))
	// 无目标集的静音只能硬件静音
	assert.True(t, HardwareMute(coremodel.ChannelMusic, bare, coremodel.MuteState{}))
	// 无路由源的通道：任何静音都硬件静音
	assert.True(t, HardwareMute(coremodel.ChannelHeadphones, toTargets, coremodel.MuteState{}))
	// 咳嗽键只作用于麦克风
	assert.False(t, HardwareMute(coremodel.ChannelMusic, coremodel.MuteState{}, bare))

	// 麦克风：带目标的推子静音不动硬件位，无目标的咳嗽键动硬件位，互不干扰
	assert.False(t, HardwareMute(coremodel.ChannelMic, toTargets, coremodel.MuteState{}))
	assert.True(t, HardwareMute(coremodel.ChannelMic, coremodel.MuteState{}, bare))
	assert.True(t, HardwareMute(coremodel.ChannelMic, toAll, coremodel.MuteState{}))
}

func TestHoldOutcomeBoundary(t *testing.T) {
	threshold := 500 * time.Millisecond
	configured := coremodel.NewOutputSet(coremodel.OutputHeadphones, coremodel.OutputLineOut)
	base := coremodel.MuteState{Mode: coremodel.MuteToTargets, Targets: configured}

	tests := []struct {
		name    string
		current coremodel.MuteState
		held    time.Duration
		want    coremodel.MuteMode
	}{
		{"quick_press_mutes", coremodel.MuteState{}, threshold - time.Millisecond, coremodel.MuteToTargets},
		{"quick_press_unmutes", base, threshold - time.Millisecond, coremodel.MuteOff},
		{"hold_at_threshold_escalates", base, threshold, coremodel.MuteToAll},
		{"hold_past_threshold_escalates", base, threshold + time.Second, coremodel.MuteToAll},
		{"quick_press_clears_all_mute", coremodel.MuteState{Mode: coremodel.MuteToAll, Targets: configured}, time.Millisecond, coremodel.MuteOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HoldOutcome(tt.current, configured, tt.held, threshold)
			assert.Equal(t, tt.want, got.Mode)
			if got.Mode != coremodel.MuteOff {
				assert.Equal(t, configured, got.Targets)
			}
		})
	}
}

func TestPlanFaderAssignSwaps(t *testing.T) {
	start := [coremodel.FaderCount]coremodel.Channel{
		coremodel.ChannelMic, coremodel.ChannelMusic, coremodel.ChannelConsole, coremodel.ChannelSystem,
	}

	// console 在槽位C，mic 在槽位A：把 mic 指派到 C 后两者互换
	got := PlanFaderAssign(start, coremodel.FaderC, coremodel.ChannelMic)
	assert.Equal(t, [coremodel.FaderCount]coremodel.Channel{
		coremodel.ChannelConsole, coremodel.ChannelMusic, coremodel.ChannelMic, coremodel.ChannelSystem,
	}, got)

	// 指派未上推子的通道：直接替换，无换位
	got = PlanFaderAssign(start, coremodel.FaderB, coremodel.ChannelChat)
	assert.Equal(t, coremodel.ChannelChat, got[coremodel.FaderB])
	assert.Equal(t, coremodel.ChannelMic, got[coremodel.FaderA])

	// 指派到当前槽位是空操作
	assert.Equal(t, start, PlanFaderAssign(start, coremodel.FaderA, coremodel.ChannelMic))
}

func TestPlanFaderAssignExclusivity(t *testing.T) {
	faders := [coremodel.FaderCount]coremodel.Channel{
		coremodel.ChannelMic, coremodel.ChannelMusic, coremodel.ChannelConsole, coremodel.ChannelSystem,
	}
	// 任意指派序列之后槽位内容保持互斥
	moves := []struct {
		slot coremodel.Fader
		ch   coremodel.Channel
	}{
		{coremodel.FaderA, coremodel.ChannelSystem},
		{coremodel.FaderD, coremodel.ChannelChat},
		{coremodel.FaderB, coremodel.ChannelChat},
		{coremodel.FaderC, coremodel.ChannelMic},
		{coremodel.FaderA, coremodel.ChannelMic},
	}
	for _, mv := range moves {
		faders = PlanFaderAssign(faders, mv.slot, mv.ch)
		seen := map[coremodel.Channel]bool{}
		for _, ch := range faders {
			assert.False(t, seen[ch], "channel %s duplicated after assigning %s to %s", ch, mv.ch, mv.slot)
			seen[ch] = true
		}
	}
}

func TestVolumeSideEffectsCapabilityGated(t *testing.T) {
	full := coremodel.CapabilitiesFor(coremodel.VariantFull)
	mini := coremodel.CapabilitiesFor(coremodel.VariantMini)

	_, write := VolumeOnMute(full)
	assert.True(t, write)
	_, write = VolumeOnMute(mini)
	assert.False(t, write, "no volume side effect without motorized faders")

	vol, write := VolumeOnUnmute(full, 0, 180)
	assert.True(t, write)
	assert.EqualValues(t, 180, vol)

	// 用户已手动调高音量时不回填
	_, write = VolumeOnUnmute(full, MinVolumeThreshold+1, 180)
	assert.False(t, write)

	_, write = VolumeOnUnmute(mini, 0, 180)
	assert.False(t, write)
}
