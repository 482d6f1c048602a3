// Package devstate 维护单台设备的内存状态镜像。
// 镜像是被动结构：仅由设备工作者在命令得到确认后调用 Apply 系列修改，
// 除结构不变量（推子槽位互斥、静音枚举合法性）外不做任何期望态校验。
package devstate

import (
	"fmt"
	"sync"

	"github.com/taoyao-code/mixerd/internal/coremodel"
	"github.com/taoyao-code/mixerd/internal/protocol/xlr"
)

// Overlay 生效中的静音路由覆盖：记录覆盖建立时的基础边集，
// 解除静音时按此精确恢复，而不是重新计算默认值。
type Overlay struct {
	Captured coremodel.OutputSet `json:"captured"` // 覆盖前的基础边集
	Targets  coremodel.OutputSet `json:"targets"`  // 被切断的目的集合
}

// State 单台设备的状态镜像
type State struct {
	mu sync.RWMutex

	hardware coremodel.HardwareInfo

	routing  coremodel.RoutingMatrix
	overlays map[coremodel.InputChannel]Overlay

	faders  [coremodel.FaderCount]coremodel.Channel
	volumes [coremodel.ChannelCount]uint8
	mutes   [coremodel.ChannelCount]coremodel.MuteState
	cough   coremodel.MuteState

	encoders  [coremodel.EncoderCount]int8
	colours   map[xlr.ColourTarget]xlr.ColourPair
	effects   map[xlr.EffectKey]int32
	micParams map[xlr.MicParamKey]xlr.MicParamValue
	micLevel  uint16
}

// New 创建状态镜像，硬件描述在接入回读后填入
func New(hw coremodel.HardwareInfo) *State {
	return &State{
		hardware:  hw,
		overlays:  make(map[coremodel.InputChannel]Overlay),
		colours:   make(map[xlr.ColourTarget]xlr.ColourPair),
		effects:   make(map[xlr.EffectKey]int32),
		micParams: make(map[xlr.MicParamKey]xlr.MicParamValue),
	}
}

// Hardware 返回硬件描述
func (s *State) Hardware() coremodel.HardwareInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hardware
}

// Capabilities 返回能力集
func (s *State) Capabilities() coremodel.Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hardware.Capabilities
}

// ApplyRouting 记录一条路由表写的确认结果（基础边集）
func (s *State) ApplyRouting(in coremodel.InputChannel, outputs coremodel.OutputSet) error {
	if !in.Valid() {
		return fmt.Errorf("devstate: invalid input channel %d", in)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routing[in] = outputs
	return nil
}

// ApplyOverlay 记录覆盖建立；captured 为覆盖前的基础边集
func (s *State) ApplyOverlay(in coremodel.InputChannel, ov Overlay) error {
	if !in.Valid() {
		return fmt.Errorf("devstate: invalid input channel %d", in)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlays[in] = ov
	return nil
}

// ClearOverlay 记录覆盖解除
func (s *State) ClearOverlay(in coremodel.InputChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overlays, in)
}

// ApplyFaders 记录推子分配批次的确认结果。
// 结构不变量：任何通道不得同时占据两个槽位。
func (s *State) ApplyFaders(faders [coremodel.FaderCount]coremodel.Channel) error {
	seen := map[coremodel.Channel]coremodel.Fader{}
	for slot, ch := range faders {
		if !ch.Valid() {
			return fmt.Errorf("devstate: invalid channel %d in fader slot %d", ch, slot)
		}
		if prev, dup := seen[ch]; dup {
			return fmt.Errorf("devstate: channel %s assigned to faders %s and %s",
				ch, prev, coremodel.Fader(slot))
		}
		seen[ch] = coremodel.Fader(slot)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faders = faders
	return nil
}

// ApplyVolume 记录音量写的确认结果（或人为移动推子的观测值）
func (s *State) ApplyVolume(ch coremodel.Channel, volume uint8) error {
	if !ch.Valid() {
		return fmt.Errorf("devstate: invalid channel %d", ch)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes[ch] = volume
	return nil
}

// ApplyMute 记录通道静音状态。非法组合（如无基础静音的全量静音）被拒绝。
func (s *State) ApplyMute(ch coremodel.Channel, mute coremodel.MuteState) error {
	if !ch.Valid() {
		return fmt.Errorf("devstate: invalid channel %d", ch)
	}
	normalized, err := mute.Normalize()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutes[ch] = normalized
	return nil
}

// ApplyCough 记录咳嗽键静音状态，独立于麦克风推子静音
func (s *State) ApplyCough(mute coremodel.MuteState) error {
	normalized, err := mute.Normalize()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cough = normalized
	return nil
}

// ApplyEncoder 记录编码器值
func (s *State) ApplyEncoder(e coremodel.Encoder, value int8) {
	if e >= coremodel.EncoderCount {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoders[e] = value
}

// ApplyColour 记录颜色表条目
func (s *State) ApplyColour(target xlr.ColourTarget, pair xlr.ColourPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.colours[target] = pair
}

// ApplyEffect 记录效果参数
func (s *State) ApplyEffect(key xlr.EffectKey, value int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effects[key] = value
}

// ApplyMicParam 记录麦克风参数
func (s *State) ApplyMicParam(p xlr.MicParamValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.micParams[p.Key] = p
}

// ApplyMicLevel 记录麦克风电平回读值（瞬时观测，仅供展示）
func (s *State) ApplyMicLevel(level uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.micLevel = level
}
