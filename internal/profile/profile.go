// Package profile 定义期望态快照的形状与结构校验。
// 磁盘文档的解析/序列化由外部协作方负责，这里只约定双方交换的结构。
package profile

import (
	"errors"
	"fmt"

	"github.com/taoyao-code/mixerd/internal/coremodel"
	"github.com/taoyao-code/mixerd/internal/devstate"
	"github.com/taoyao-code/mixerd/internal/protocol/xlr"
)

// ErrProfileInvariant 期望态违反结构不变量（如重复推子指派）。
// 校验在调和之前执行，带病的期望态不会进入调和流程。
var ErrProfileInvariant = errors.New("profile invariant violation")

// Profile 持久化的期望态子集。
// 只保存基础静音（开/关 + 配置目标集），瞬态的路由覆盖与全量静音不落盘。
// 推子表显示与涂鸦屏仅全功能型号生效，涂鸦屏空槽位不下发。
type Profile struct {
	Routing coremodel.RoutingMatrix                 `json:"routing"`
	Faders  [coremodel.FaderCount]coremodel.Channel `json:"faders"`
	Volumes [coremodel.ChannelCount]uint8           `json:"volumes"`

	// Muted 基础静音开关；MuteTargets 为配置的静音目标集，
	// 空集表示静音时直接硬件静音而不是切路由边
	Muted        [coremodel.ChannelCount]bool                `json:"muted"`
	MuteTargets  [coremodel.ChannelCount]coremodel.OutputSet `json:"mute_targets"`
	CoughTargets coremodel.OutputSet                         `json:"cough_targets"`

	Encoders      [coremodel.EncoderCount]int8          `json:"encoders"`
	FaderDisplays [coremodel.FaderCount]uint8           `json:"fader_displays"`
	Scribbles     [coremodel.FaderCount][]byte          `json:"scribbles,omitempty"`
	Colours       map[xlr.ColourTarget]xlr.ColourPair   `json:"colours,omitempty"`
	Effects       map[xlr.EffectKey]int32               `json:"effects,omitempty"`
	MicParams     map[xlr.MicParamKey]xlr.MicParamValue `json:"mic_params,omitempty"`
}

// Default 返回设备接入时的出厂期望态：
// 推子A-D依次为麦克风/音乐/聊天/系统，全通道满音量，全部未静音，标准路由表。
func Default() Profile {
	p := Profile{
		Faders: [coremodel.FaderCount]coremodel.Channel{
			coremodel.ChannelMic, coremodel.ChannelMusic,
			coremodel.ChannelChat, coremodel.ChannelSystem,
		},
	}
	for ch := range p.Volumes {
		p.Volumes[ch] = 255
	}
	base := coremodel.NewOutputSet(
		coremodel.OutputHeadphones, coremodel.OutputBroadcastMix, coremodel.OutputLineOut)
	for in := coremodel.InputChannel(0); in < coremodel.InputCount; in++ {
		p.Routing[in] = base
	}
	// 麦克风额外送往语音聊天
	p.Routing[coremodel.InputMic] = base.Add(coremodel.OutputChatMic)
	return p
}

// BaseMute 返回通道的基础静音状态（持久化语义，不含瞬态升级）
func (p Profile) BaseMute(ch coremodel.Channel) coremodel.MuteState {
	if !ch.Valid() || !p.Muted[ch] {
		return coremodel.MuteState{}
	}
	return coremodel.MuteState{Mode: coremodel.MuteToTargets, Targets: p.MuteTargets[ch]}
}

// Validate 校验结构不变量。任何违反都包装 ErrProfileInvariant 返回。
func (p Profile) Validate() error {
	seen := map[coremodel.Channel]coremodel.Fader{}
	for slot, ch := range p.Faders {
		if !ch.Valid() {
			return fmt.Errorf("%w: invalid channel %d in fader slot %s",
				ErrProfileInvariant, ch, coremodel.Fader(slot))
		}
		if prev, dup := seen[ch]; dup {
			return fmt.Errorf("%w: channel %s assigned to faders %s and %s",
				ErrProfileInvariant, ch, prev, coremodel.Fader(slot))
		}
		seen[ch] = coremodel.Fader(slot)
	}
	for slot, bitmap := range p.Scribbles {
		if len(bitmap) != 0 && len(bitmap) != xlr.ScribbleLen {
			return fmt.Errorf("%w: scribble bitmap for fader %s is %d bytes, want %d",
				ErrProfileInvariant, coremodel.Fader(slot), len(bitmap), xlr.ScribbleLen)
		}
	}
	for target := range p.Colours {
		if int(target) >= xlr.ColourTargetCount {
			return fmt.Errorf("%w: colour target %d out of range", ErrProfileInvariant, target)
		}
	}
	for key := range p.Effects {
		if !key.Known() {
			return fmt.Errorf("%w: unknown effect key 0x%04x", ErrProfileInvariant, uint32(key))
		}
	}
	for key, v := range p.MicParams {
		if !key.Known() {
			return fmt.Errorf("%w: unknown mic param key 0x%03x", ErrProfileInvariant, uint32(key))
		}
		if v.Key != key {
			return fmt.Errorf("%w: mic param entry %s keyed as %s", ErrProfileInvariant, v.Key, key)
		}
	}
	return nil
}

// FromSnapshot 由状态镜像快照提取可持久化的期望态。
// 覆盖属于瞬态事实被丢弃；全量静音降级为基础静音，目标集保留。
func FromSnapshot(snap devstate.Snapshot) Profile {
	p := Profile{
		Routing:  snap.Routing,
		Faders:   snap.Faders,
		Volumes:  snap.Volumes,
		Encoders: snap.Encoders,
	}
	for ch := coremodel.Channel(0); ch < coremodel.ChannelCount; ch++ {
		mute := snap.Mutes[ch]
		p.Muted[ch] = !mute.Unmuted()
		p.MuteTargets[ch] = mute.Targets
	}
	p.CoughTargets = snap.Cough.Targets
	if len(snap.Colours) > 0 {
		p.Colours = make(map[xlr.ColourTarget]xlr.ColourPair, len(snap.Colours))
		for k, v := range snap.Colours {
			p.Colours[k] = v
		}
	}
	if len(snap.Effects) > 0 {
		p.Effects = make(map[xlr.EffectKey]int32, len(snap.Effects))
		for k, v := range snap.Effects {
			p.Effects[k] = v
		}
	}
	if len(snap.MicParams) > 0 {
		p.MicParams = make(map[xlr.MicParamKey]xlr.MicParamValue, len(snap.MicParams))
		for k, v := range snap.MicParams {
			p.MicParams[k] = v
		}
	}
	return p
}
