package xlr

import (
	"encoding/binary"
	"fmt"
)

// EffectKey 效果参数键空间，封闭枚举。
// 键值来自固件参数表，按效果分组：0x011x 噪声门，0x012x 压缩器，
// 0x013x 混响，0x014x 回声，0x015x 音调，0x016x 变声，
// 0x017x 喇叭，0x018x 机器人，0x019x 硬调音，0x01f0+ 编码器使能位。
type EffectKey uint32

const (
	EffectGateThreshold   EffectKey = 0x0110
	EffectGateAttack      EffectKey = 0x0111
	EffectGateRelease     EffectKey = 0x0112
	EffectGateAttenuation EffectKey = 0x0113

	EffectCompThreshold  EffectKey = 0x0120
	EffectCompRatio      EffectKey = 0x0121
	EffectCompAttack     EffectKey = 0x0122
	EffectCompRelease    EffectKey = 0x0123
	EffectCompMakeupGain EffectKey = 0x0124

	EffectReverbAmount EffectKey = 0x0130

	EffectEchoAmount   EffectKey = 0x0140
	EffectEchoFeedback EffectKey = 0x0141

	EffectPitchAmount EffectKey = 0x0150

	EffectGenderAmount EffectKey = 0x0160

	EffectMegaphoneAmount   EffectKey = 0x0170
	EffectMegaphonePostGain EffectKey = 0x0171

	EffectRobotLowGain  EffectKey = 0x0180
	EffectRobotMidGain  EffectKey = 0x0181
	EffectRobotHighGain EffectKey = 0x0182
	EffectRobotWidth    EffectKey = 0x0183

	EffectHardTuneAmount EffectKey = 0x0190
	EffectHardTuneRate   EffectKey = 0x0191

	EffectReverbEnabled    EffectKey = 0x01f0
	EffectEchoEnabled      EffectKey = 0x01f1
	EffectPitchEnabled     EffectKey = 0x01f2
	EffectGenderEnabled    EffectKey = 0x01f3
	EffectMegaphoneEnabled EffectKey = 0x01f4
	EffectRobotEnabled     EffectKey = 0x01f5
	EffectHardTuneEnabled  EffectKey = 0x01f6
)

// effectKeyNames 键名表，同时定义键空间全集；编码表完备性由测试保证。
var effectKeyNames = map[EffectKey]string{
	EffectGateThreshold:     "gate_threshold",
	EffectGateAttack:        "gate_attack",
	EffectGateRelease:       "gate_release",
	EffectGateAttenuation:   "gate_attenuation",
	EffectCompThreshold:     "comp_threshold",
	EffectCompRatio:         "comp_ratio",
	EffectCompAttack:        "comp_attack",
	EffectCompRelease:       "comp_release",
	EffectCompMakeupGain:    "comp_makeup_gain",
	EffectReverbAmount:      "reverb_amount",
	EffectEchoAmount:        "echo_amount",
	EffectEchoFeedback:      "echo_feedback",
	EffectPitchAmount:       "pitch_amount",
	EffectGenderAmount:      "gender_amount",
	EffectMegaphoneAmount:   "megaphone_amount",
	EffectMegaphonePostGain: "megaphone_post_gain",
	EffectRobotLowGain:      "robot_low_gain",
	EffectRobotMidGain:      "robot_mid_gain",
	EffectRobotHighGain:     "robot_high_gain",
	EffectRobotWidth:        "robot_width",
	EffectHardTuneAmount:    "hardtune_amount",
	EffectHardTuneRate:      "hardtune_rate",
	EffectReverbEnabled:     "reverb_enabled",
	EffectEchoEnabled:       "echo_enabled",
	EffectPitchEnabled:      "pitch_enabled",
	EffectGenderEnabled:     "gender_enabled",
	EffectMegaphoneEnabled:  "megaphone_enabled",
	EffectRobotEnabled:      "robot_enabled",
	EffectHardTuneEnabled:   "hardtune_enabled",
}

func (k EffectKey) String() string {
	if name, ok := effectKeyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("effect_0x%04x", uint32(k))
}

// Known 判断键是否属于封闭键空间
func (k EffectKey) Known() bool {
	_, ok := effectKeyNames[k]
	return ok
}

// EffectKeyByName 按名称查找效果参数键（IPC表示用）
func EffectKeyByName(name string) (EffectKey, bool) {
	for k, n := range effectKeyNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// EffectKeys 返回键空间全集（顺序不保证）
func EffectKeys() []EffectKey {
	keys := make([]EffectKey, 0, len(effectKeyNames))
	for k := range effectKeyNames {
		keys = append(keys, k)
	}
	return keys
}

// EffectValue 一条效果参数记录
type EffectValue struct {
	Key   EffectKey
	Value int32
}

const effectRecordLen = 8

// EncodeEffects 编码效果参数体：8字节定长记录流，key:u32 + value:i32。
// 未知键拒绝编码。
func EncodeEffects(values []EffectValue) ([]byte, error) {
	body := make([]byte, 0, len(values)*effectRecordLen)
	for _, v := range values {
		if !v.Key.Known() {
			return nil, fmt.Errorf("xlr: unknown effect key 0x%04x", uint32(v.Key))
		}
		var rec [effectRecordLen]byte
		binary.LittleEndian.PutUint32(rec[0:4], uint32(v.Key))
		binary.LittleEndian.PutUint32(rec[4:8], uint32(v.Value))
		body = append(body, rec[:]...)
	}
	return body, nil
}

// DecodeEffects 解码效果参数体
func DecodeEffects(body []byte) ([]EffectValue, error) {
	if len(body)%effectRecordLen != 0 {
		return nil, fmt.Errorf("%w: effect body length %d not a multiple of %d",
			ErrMalformedFrame, len(body), effectRecordLen)
	}
	values := make([]EffectValue, 0, len(body)/effectRecordLen)
	for off := 0; off < len(body); off += effectRecordLen {
		values = append(values, EffectValue{
			Key:   EffectKey(binary.LittleEndian.Uint32(body[off : off+4])),
			Value: int32(binary.LittleEndian.Uint32(body[off+4 : off+8])),
		})
	}
	return values, nil
}
