package xlr

import (
	"fmt"

	"github.com/taoyao-code/mixerd/internal/coremodel"
)

// WireInput 路由写命令寻址用的单声道线上ID。
// 每个逻辑源通道对应左右两路，各自下发一条路由写命令。
type WireInput uint8

// RoutingBodyLen 路由表体长度：每个目的声道一个音量字节的稀疏布局
const RoutingBodyLen = 22

// RoutingUnity 0x20 为标称满音量（并非上限）
const RoutingUnity = 0x20

// wireInputs 逻辑源通道 → (右, 左) 线上ID
var wireInputs = [coremodel.InputCount][2]WireInput{
	coremodel.InputMic:     {0x02, 0x03},
	coremodel.InputLineIn:  {0x04, 0x05},
	coremodel.InputConsole: {0x06, 0x07},
	coremodel.InputSystem:  {0x08, 0x09},
	coremodel.InputGame:    {0x0a, 0x0b},
	coremodel.InputMusic:   {0x0e, 0x0f},
	coremodel.InputSamples: {0x10, 0x11},
	coremodel.InputChat:    {0x12, 0x13},
}

// WireInputsFor 返回源通道的右、左线上ID
func WireInputsFor(in coremodel.InputChannel) (right, left WireInput, err error) {
	if !in.Valid() {
		return 0, 0, fmt.Errorf("xlr: invalid input channel %d", in)
	}
	pair := wireInputs[in]
	return pair[0], pair[1], nil
}

// 目的声道在22字节路由体中的偏移
var outputPositions = [coremodel.OutputCount][2]int{
	coremodel.OutputHeadphones:   {1, 3},   // 右, 左
	coremodel.OutputBroadcastMix: {5, 7},
	coremodel.OutputChatMic:      {9, 11},
	coremodel.OutputSampler:      {13, 15},
	coremodel.OutputLineOut:      {17, 19},
}

// BuildRoutingBodies 由目的通道集合生成左右两路的22字节路由体。
// 存在的边左右声道均写 RoutingUnity，缺失的边为0。
func BuildRoutingBodies(outputs coremodel.OutputSet) (right, left [RoutingBodyLen]byte) {
	for o := coremodel.OutputChannel(0); o < coremodel.OutputCount; o++ {
		if !outputs.Has(o) {
			continue
		}
		pos := outputPositions[o]
		right[pos[0]] = RoutingUnity
		left[pos[1]] = RoutingUnity
	}
	return right, left
}

// ParseRoutingBody 从一路路由体反推目的通道集合（任一声道位非零即视为连通）
func ParseRoutingBody(body []byte) (coremodel.OutputSet, error) {
	if len(body) != RoutingBodyLen {
		return 0, fmt.Errorf("%w: routing body length %d, want %d",
			ErrMalformedFrame, len(body), RoutingBodyLen)
	}
	var set coremodel.OutputSet
	for o := coremodel.OutputChannel(0); o < coremodel.OutputCount; o++ {
		pos := outputPositions[o]
		if body[pos[0]] != 0 || body[pos[1]] != 0 {
			set = set.Add(o)
		}
	}
	return set, nil
}
