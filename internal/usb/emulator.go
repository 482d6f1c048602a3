package usb

import (
	"encoding/binary"
	"sync"

	"github.com/taoyao-code/mixerd/internal/coremodel"
	"github.com/taoyao-code/mixerd/internal/protocol/xlr"
)

// Emulator 内存模拟后端：按协议语义响应命令帧，
// 用于单元测试与无硬件联调，替代真实 usbfs 节点。
type Emulator struct {
	mu sync.Mutex

	Variant coremodel.Variant
	Serial  string
	MfgDate string

	// 可注入的物理面板状态，GetButtonStates 回读使用
	Pressed  uint32
	Encoders [coremodel.EncoderCount]int8
	Volumes  [coremodel.FaderCount]uint8
	MicLevel uint16

	// 故障注入
	NotReadyPolls int // 每条命令先返回N次未就绪
	FailWrites    int // 接下来N次写失败
	DropResponses int // 接下来N条响应被吞掉（制造超时）
	CorruptSeqs   int // 接下来N条响应序号错位

	notReadyLeft int
	response     []byte
	received     []xlr.Frame
	closed       bool
}

// NewEmulator 创建模拟设备
func NewEmulator(variant coremodel.Variant, serial string) *Emulator {
	return &Emulator{
		Variant: variant,
		Serial:  serial,
		MfgDate: "2024-01-01",
		Volumes: [coremodel.FaderCount]uint8{255, 255, 255, 255},
	}
}

// SetPressed 设置面板按下位图（测试期并发安全）
func (e *Emulator) SetPressed(mask uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Pressed = mask
}

// SetPanelVolume 设置某推子槽位的物理音量
func (e *Emulator) SetPanelVolume(slot int, v uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if slot >= 0 && slot < coremodel.FaderCount {
		e.Volumes[slot] = v
	}
}

// SetMicLevel 设置麦克风电平回读值
func (e *Emulator) SetMicLevel(v uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.MicLevel = v
}

// SetPanelEncoder 设置某编码器的物理值
func (e *Emulator) SetPanelEncoder(i int, v int8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i >= 0 && i < coremodel.EncoderCount {
		e.Encoders[i] = v
	}
}

// Received 返回已接收命令帧的副本
func (e *Emulator) Received() []xlr.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]xlr.Frame, len(e.received))
	copy(out, e.received)
	return out
}

// ReceivedByClass 按命令类别过滤已接收帧
func (e *Emulator) ReceivedByClass(class xlr.Class) []xlr.Frame {
	var out []xlr.Frame
	for _, f := range e.Received() {
		if f.Command.Class == class {
			out = append(out, f)
		}
	}
	return out
}

// ClearReceived 清空命令记录
func (e *Emulator) ClearReceived() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.received = nil
}

// WriteVendor 实现 Backend
func (e *Emulator) WriteVendor(request uint8, value, index uint16, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrDeviceUnresponsive
	}
	if e.FailWrites > 0 {
		e.FailWrites--
		return ErrResponseNotReady
	}
	if request != reqSubmitCommand {
		// 管道复位等控制请求直接成功
		return nil
	}

	frame, err := xlr.Decode(data)
	if err != nil {
		return err
	}
	e.received = append(e.received, frame)

	if e.DropResponses > 0 {
		e.DropResponses--
		e.response = nil
		return nil
	}

	seq := frame.Seq
	if e.CorruptSeqs > 0 && frame.Command.Class != xlr.ClassResetSeq {
		e.CorruptSeqs--
		seq++
	}
	body := e.respond(frame)
	resp, err := xlr.Encode(frame.Command, seq, body)
	if err != nil {
		return err
	}
	e.response = resp
	e.notReadyLeft = e.NotReadyPolls
	return nil
}

// respond 按命令类别生成响应体
func (e *Emulator) respond(f xlr.Frame) []byte {
	switch f.Command.Class {
	case xlr.ClassGetHardwareInfo:
		if f.Command.Sub == xlr.HardwareInfoSerial {
			body := make([]byte, 48)
			copy(body[:24], e.Serial)
			copy(body[24:], e.MfgDate)
			return body
		}
		body := make([]byte, 16)
		binary.LittleEndian.PutUint32(body[0:4], 1<<12|2<<8|3) // 1.2.3
		binary.LittleEndian.PutUint32(body[4:8], 100)
		return body
	case xlr.ClassGetButtonStates:
		body := make([]byte, 12)
		binary.LittleEndian.PutUint32(body[0:4], e.Pressed)
		for i := 0; i < coremodel.EncoderCount; i++ {
			body[4+i] = byte(e.Encoders[i])
		}
		for i := 0; i < coremodel.FaderCount; i++ {
			body[8+i] = e.Volumes[i]
		}
		return body
	case xlr.ClassGetMicLevel:
		body := make([]byte, 2)
		binary.LittleEndian.PutUint16(body, e.MicLevel)
		return body
	case xlr.ClassSystemInfo:
		if f.Command.Sub == xlr.SystemInfoSupportsDCP {
			return []byte{0x01, 0x00}
		}
		return nil
	}
	// 写命令：确认帧不带体
	return nil
}

// ReadVendor 实现 Backend
func (e *Emulator) ReadVendor(request uint8, value, index uint16, length int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrDeviceUnresponsive
	}
	if request != reqReadResponse {
		return make([]byte, length), nil
	}
	if e.notReadyLeft > 0 {
		e.notReadyLeft--
		return nil, ErrResponseNotReady
	}
	if e.response == nil {
		return nil, ErrResponseNotReady
	}
	resp := e.response
	e.response = nil
	return resp, nil
}

// Close 实现 Backend
func (e *Emulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// EmulatedEnumerator 测试用枚举器：返回注册的模拟设备
type EmulatedEnumerator struct {
	mu      sync.Mutex
	devices map[coremodel.DeviceSerial]*Emulator
}

// NewEmulatedEnumerator 创建空枚举器
func NewEmulatedEnumerator() *EmulatedEnumerator {
	return &EmulatedEnumerator{devices: make(map[coremodel.DeviceSerial]*Emulator)}
}

// Attach 插入一台模拟设备
func (e *EmulatedEnumerator) Attach(em *Emulator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.devices[coremodel.DeviceSerial(em.Serial)] = em
}

// Detach 拔出一台模拟设备
func (e *EmulatedEnumerator) Detach(serial coremodel.DeviceSerial) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if em, ok := e.devices[serial]; ok {
		_ = em.Close()
		delete(e.devices, serial)
	}
}

// List 实现 Enumerator
func (e *EmulatedEnumerator) List() ([]DeviceInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []DeviceInfo
	for serial, em := range e.devices {
		pid := coremodel.ProductIDFull
		if em.Variant == coremodel.VariantMini {
			pid = coremodel.ProductIDMini
		}
		out = append(out, DeviceInfo{
			VendorID:  coremodel.VendorID,
			ProductID: pid,
			Serial:    serial,
		})
	}
	return out, nil
}

// Open 实现 Enumerator
func (e *EmulatedEnumerator) Open(info DeviceInfo) (Backend, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	em, ok := e.devices[info.Serial]
	if !ok {
		return nil, ErrDeviceUnresponsive
	}
	return em, nil
}
