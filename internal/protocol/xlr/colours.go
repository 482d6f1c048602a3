package xlr

import (
	"encoding/binary"
	"fmt"
)

// ColourTarget 颜色映射的数字键：按键、推子表、涂鸦屏、编码器环、Logo与氛围灯。
// 键即颜色表中的槽位序号。
type ColourTarget uint8

const (
	// 0-23 与 Button 位序一致
	ColourFadeMeter1 ColourTarget = ButtonCount + iota
	ColourFadeMeter2
	ColourFadeMeter3
	ColourFadeMeter4
	ColourScribble1
	ColourScribble2
	ColourScribble3
	ColourScribble4
	ColourPitchEncoder
	ColourGenderEncoder
	ColourReverbEncoder
	ColourEchoEncoder
	ColourLogoX1
	ColourLogoX2
	ColourAccent1
	ColourAccent2
	ColourAccent3

	ColourTargetCount = 41
)

// Colour RGBA颜色值
type Colour struct {
	Red   uint8 `json:"red"`
	Green uint8 `json:"green"`
	Blue  uint8 `json:"blue"`
	Alpha uint8 `json:"alpha"`
}

// ColourPair 单个目标的双色槽（主色/副色）
type ColourPair struct {
	One Colour `json:"one"`
	Two Colour `json:"two"`
}

// ColourMapLen 颜色表写体长度：每个目标8字节（两组RGBA）
const ColourMapLen = ColourTargetCount * 8

// ScribbleLen 涂鸦屏位图写体长度：128x64 单色点阵
const ScribbleLen = 1024

// BuildColourMap 编码颜色表写体。未给出的目标保持全零（灯灭）。
func BuildColourMap(colours map[ColourTarget]ColourPair) ([ColourMapLen]byte, error) {
	var body [ColourMapLen]byte
	for target, pair := range colours {
		if int(target) >= ColourTargetCount {
			return body, fmt.Errorf("xlr: colour target %d out of range", target)
		}
		off := int(target) * 8
		putColour(body[off:off+4], pair.One)
		putColour(body[off+4:off+8], pair.Two)
	}
	return body, nil
}

func putColour(dst []byte, c Colour) {
	binary.BigEndian.PutUint32(dst, uint32(c.Red)<<24|uint32(c.Green)<<16|uint32(c.Blue)<<8|uint32(c.Alpha))
}
