package xlr

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/taoyao-code/mixerd/internal/coremodel"
)

const serialFieldLen = 24

// ParseSerialInfo 解码硬件信息（序列号）回读体：
// 24字节NUL填充序列号 + NUL填充生产日期
func ParseSerialInfo(body []byte) (serial, manufactureDate string, err error) {
	if len(body) < serialFieldLen {
		return "", "", fmt.Errorf("%w: serial info body length %d, want at least %d",
			ErrMalformedFrame, len(body), serialFieldLen)
	}
	return cString(body[:serialFieldLen]), cString(body[serialFieldLen:]), nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

const firmwareInfoLen = 8

// ParseFirmwareInfo 解码硬件信息（固件版本）回读体。
// 版本字打包格式：major<<12 | minor<<8 | patch，随后是构建号。
func ParseFirmwareInfo(body []byte) (coremodel.FirmwareVersion, error) {
	if len(body) < firmwareInfoLen {
		return coremodel.FirmwareVersion{}, fmt.Errorf("%w: firmware info body length %d, want at least %d",
			ErrMalformedFrame, len(body), firmwareInfoLen)
	}
	packed := binary.LittleEndian.Uint32(body[0:4])
	build := binary.LittleEndian.Uint32(body[4:8])
	return coremodel.FirmwareVersion{
		Major: packed >> 12,
		Minor: (packed >> 8) & 0xF,
		Patch: packed & 0xFF,
		Build: build,
	}, nil
}

// ParseMicLevel 解码麦克风电平回读体（u16）
func ParseMicLevel(body []byte) (uint16, error) {
	if len(body) < 2 {
		return 0, fmt.Errorf("%w: mic level body length %d, want 2", ErrMalformedFrame, len(body))
	}
	return binary.LittleEndian.Uint16(body[0:2]), nil
}
