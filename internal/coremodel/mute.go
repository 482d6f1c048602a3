package coremodel

import "fmt"

// MuteMode 静音模式枚举
type MuteMode uint8

const (
	// MuteOff 未静音
	MuteOff MuteMode = iota
	// MuteToTargets 基础静音：仅切断到配置目标的路由边
	MuteToTargets
	// MuteToAll 全量静音：仅能由 MuteToTargets 经长按升级进入
	MuteToAll
)

func (m MuteMode) String() string {
	switch m {
	case MuteOff:
		return "off"
	case MuteToTargets:
		return "to_targets"
	case MuteToAll:
		return "to_all"
	}
	return "unknown"
}

// MuteState 单通道静音状态。Targets 仅在 MuteToTargets / MuteToAll 下有意义：
// 升级到全量静音后保留原目标集，便于松开长按回落到基础静音。
type MuteState struct {
	Mode    MuteMode  `json:"mode"`
	Targets OutputSet `json:"targets"`
}

// Unmuted 判断是否处于未静音状态
func (s MuteState) Unmuted() bool { return s.Mode == MuteOff }

// Normalize 校验并修正非法组合。全量静音必须建立在基础静音之上，
// "基础静音未激活但全量静音激活" 视为非法输入并拒绝。
func (s MuteState) Normalize() (MuteState, error) {
	switch s.Mode {
	case MuteOff:
		if !s.Targets.Empty() {
			// 未静音时目标集无意义，清空而不是报错
			return MuteState{Mode: MuteOff}, nil
		}
		return s, nil
	case MuteToTargets:
		return s, nil
	case MuteToAll:
		if s.Targets.Empty() {
			return MuteState{}, fmt.Errorf("mute state: to_all without base targets")
		}
		return s, nil
	}
	return MuteState{}, fmt.Errorf("mute state: unknown mode %d", s.Mode)
}
