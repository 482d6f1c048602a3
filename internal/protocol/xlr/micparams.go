package xlr

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MicParamKey 麦克风参数键空间，封闭枚举
type MicParamKey uint32

const (
	// MicParamMicType 麦克风类型（整型值）
	MicParamMicType MicParamKey = 0x000
	// MicParamDynamicGain / MicParamCondenserGain / MicParamJackGain
	// 按麦克风类型区分的增益（整型值，见 IsIntegerValued）
	MicParamDynamicGain   MicParamKey = 0x001
	MicParamCondenserGain MicParamKey = 0x002
	MicParamJackGain      MicParamKey = 0x003

	MicParamGateThreshold   MicParamKey = 0x010
	MicParamGateAttack      MicParamKey = 0x011
	MicParamGateRelease     MicParamKey = 0x012
	MicParamGateAttenuation MicParamKey = 0x013

	MicParamCompThreshold  MicParamKey = 0x020
	MicParamCompRatio      MicParamKey = 0x021
	MicParamCompAttack     MicParamKey = 0x022
	MicParamCompRelease    MicParamKey = 0x023
	MicParamCompMakeupGain MicParamKey = 0x024

	MicParamBleepLevel MicParamKey = 0x030
)

var micParamNames = map[MicParamKey]string{
	MicParamMicType:         "mic_type",
	MicParamDynamicGain:     "dynamic_gain",
	MicParamCondenserGain:   "condenser_gain",
	MicParamJackGain:        "jack_gain",
	MicParamGateThreshold:   "gate_threshold",
	MicParamGateAttack:      "gate_attack",
	MicParamGateRelease:     "gate_release",
	MicParamGateAttenuation: "gate_attenuation",
	MicParamCompThreshold:   "comp_threshold",
	MicParamCompRatio:       "comp_ratio",
	MicParamCompAttack:      "comp_attack",
	MicParamCompRelease:     "comp_release",
	MicParamCompMakeupGain:  "comp_makeup_gain",
	MicParamBleepLevel:      "bleep_level",
}

func (k MicParamKey) String() string {
	if name, ok := micParamNames[k]; ok {
		return name
	}
	return fmt.Sprintf("mic_param_0x%03x", uint32(k))
}

// Known 判断键是否属于封闭键空间
func (k MicParamKey) Known() bool {
	_, ok := micParamNames[k]
	return ok
}

// IsIntegerValued 该键的值是否为记录偏移6处的u16整型。
// 麦克风类型与分类型增益走整型槽位，其余键为float32。按键区分而不是按位置。
func (k MicParamKey) IsIntegerValued() bool {
	switch k {
	case MicParamMicType, MicParamDynamicGain, MicParamCondenserGain, MicParamJackGain:
		return true
	}
	return false
}

// MicParamKeys 返回键空间全集（顺序不保证）
func MicParamKeys() []MicParamKey {
	keys := make([]MicParamKey, 0, len(micParamNames))
	for k := range micParamNames {
		keys = append(keys, k)
	}
	return keys
}

// MicParamValue 一条麦克风参数记录。整型键使用 Int，浮点键使用 Float。
type MicParamValue struct {
	Key   MicParamKey
	Float float32
	Int   uint16
}

const micRecordLen = 8

// EncodeMicParams 编码麦克风参数体：8字节定长记录流，key:u32 + 4字节值槽。
// 整型键的u16值写在记录偏移6处，槽位前2字节留空。
func EncodeMicParams(params []MicParamValue) ([]byte, error) {
	body := make([]byte, 0, len(params)*micRecordLen)
	for _, p := range params {
		if !p.Key.Known() {
			return nil, fmt.Errorf("xlr: unknown mic param key 0x%03x", uint32(p.Key))
		}
		var rec [micRecordLen]byte
		binary.LittleEndian.PutUint32(rec[0:4], uint32(p.Key))
		if p.Key.IsIntegerValued() {
			binary.LittleEndian.PutUint16(rec[6:8], p.Int)
		} else {
			binary.LittleEndian.PutUint32(rec[4:8], math.Float32bits(p.Float))
		}
		body = append(body, rec[:]...)
	}
	return body, nil
}

// DecodeMicParams 解码麦克风参数体，按键区分整型/浮点槽位
func DecodeMicParams(body []byte) ([]MicParamValue, error) {
	if len(body)%micRecordLen != 0 {
		return nil, fmt.Errorf("%w: mic param body length %d not a multiple of %d",
			ErrMalformedFrame, len(body), micRecordLen)
	}
	params := make([]MicParamValue, 0, len(body)/micRecordLen)
	for off := 0; off < len(body); off += micRecordLen {
		p := MicParamValue{Key: MicParamKey(binary.LittleEndian.Uint32(body[off : off+4]))}
		if p.Key.IsIntegerValued() {
			p.Int = binary.LittleEndian.Uint16(body[off+6 : off+8])
		} else {
			p.Float = math.Float32frombits(binary.LittleEndian.Uint32(body[off+4 : off+8]))
		}
		params = append(params, p)
	}
	return params, nil
}
