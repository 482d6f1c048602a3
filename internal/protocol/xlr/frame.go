package xlr

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// 帧格式：16字节头 + 变长体，全部小端。
// 头部：command(4) + bodyLen(2) + seq(2) + 保留(8)
const HeaderLen = 16

// ErrMalformedFrame 帧结构非法：缓冲区短于头部或声明的体长度
var ErrMalformedFrame = errors.New("xlr: malformed frame")

// Frame 一条完整的命令帧
type Frame struct {
	Command Command
	Seq     uint16
	Body    []byte
}

// Encode 编码命令帧。体长度超出 uint16 时返回错误。
func Encode(cmd Command, seq uint16, body []byte) ([]byte, error) {
	if len(body) > 0xFFFF {
		return nil, fmt.Errorf("%w: body length %d exceeds limit", ErrMalformedFrame, len(body))
	}
	buf := make([]byte, HeaderLen+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], cmd.Word())
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(body)))
	binary.LittleEndian.PutUint16(buf[6:8], seq)
	copy(buf[HeaderLen:], body)
	return buf, nil
}

// Decode 解码命令帧。体按声明长度截取，多余字节视为填充丢弃。
func Decode(buf []byte) (Frame, error) {
	if len(buf) < HeaderLen {
		return Frame{}, fmt.Errorf("%w: %d bytes, want header of %d", ErrMalformedFrame, len(buf), HeaderLen)
	}
	bodyLen := int(binary.LittleEndian.Uint16(buf[4:6]))
	if len(buf) < HeaderLen+bodyLen {
		return Frame{}, fmt.Errorf("%w: declared body %d bytes, %d available",
			ErrMalformedFrame, bodyLen, len(buf)-HeaderLen)
	}
	body := make([]byte, bodyLen)
	copy(body, buf[HeaderLen:HeaderLen+bodyLen])
	return Frame{
		Command: CommandFromWord(binary.LittleEndian.Uint32(buf[0:4])),
		Seq:     binary.LittleEndian.Uint16(buf[6:8]),
		Body:    body,
	}, nil
}
