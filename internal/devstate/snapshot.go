package devstate

import (
	"github.com/taoyao-code/mixerd/internal/coremodel"
	"github.com/taoyao-code/mixerd/internal/protocol/xlr"
)

// Snapshot 状态镜像的一致性快照，供调和、IPC查询与配置持久化使用。
// 覆盖（Overlays）属于瞬态事实，持久化收集方必须忽略。
type Snapshot struct {
	Hardware coremodel.HardwareInfo `json:"hardware"`

	Routing  coremodel.RoutingMatrix                     `json:"routing"`
	Overlays map[coremodel.InputChannel]Overlay          `json:"overlays,omitempty"`
	Faders   [coremodel.FaderCount]coremodel.Channel     `json:"faders"`
	Volumes  [coremodel.ChannelCount]uint8               `json:"volumes"`
	Mutes    [coremodel.ChannelCount]coremodel.MuteState `json:"mutes"`
	Cough    coremodel.MuteState                         `json:"cough"`

	Encoders  [coremodel.EncoderCount]int8          `json:"encoders"`
	Colours   map[xlr.ColourTarget]xlr.ColourPair   `json:"colours,omitempty"`
	Effects   map[xlr.EffectKey]int32               `json:"effects,omitempty"`
	MicParams map[xlr.MicParamKey]xlr.MicParamValue `json:"mic_params,omitempty"`
	MicLevel  uint16                                `json:"mic_level"`
}

// Snapshot 导出深拷贝快照
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Hardware: s.hardware,
		Routing:  s.routing,
		Faders:   s.faders,
		Volumes:  s.volumes,
		Mutes:    s.mutes,
		Cough:    s.cough,
		Encoders: s.encoders,
		MicLevel: s.micLevel,
	}
	if len(s.overlays) > 0 {
		snap.Overlays = make(map[coremodel.InputChannel]Overlay, len(s.overlays))
		for k, v := range s.overlays {
			snap.Overlays[k] = v
		}
	}
	if len(s.colours) > 0 {
		snap.Colours = make(map[xlr.ColourTarget]xlr.ColourPair, len(s.colours))
		for k, v := range s.colours {
			snap.Colours[k] = v
		}
	}
	if len(s.effects) > 0 {
		snap.Effects = make(map[xlr.EffectKey]int32, len(s.effects))
		for k, v := range s.effects {
			snap.Effects[k] = v
		}
	}
	if len(s.micParams) > 0 {
		snap.MicParams = make(map[xlr.MicParamKey]xlr.MicParamValue, len(s.micParams))
		for k, v := range s.micParams {
			snap.MicParams[k] = v
		}
	}
	return snap
}

// FaderFor 返回通道所在的推子槽位
func (snap Snapshot) FaderFor(ch coremodel.Channel) (coremodel.Fader, bool) {
	for slot, c := range snap.Faders {
		if c == ch {
			return coremodel.Fader(slot), true
		}
	}
	return 0, false
}

// Volume 返回通道音量
func (snap Snapshot) Volume(ch coremodel.Channel) uint8 {
	if !ch.Valid() {
		return 0
	}
	return snap.Volumes[ch]
}

// Mute 返回通道静音状态
func (snap Snapshot) Mute(ch coremodel.Channel) coremodel.MuteState {
	if !ch.Valid() {
		return coremodel.MuteState{}
	}
	return snap.Mutes[ch]
}

// Overlay 返回源通道的生效覆盖
func (snap Snapshot) Overlay(in coremodel.InputChannel) (Overlay, bool) {
	ov, ok := snap.Overlays[in]
	return ov, ok
}
