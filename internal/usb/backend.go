package usb

import (
	"errors"

	"github.com/taoyao-code/mixerd/internal/coremodel"
)

// 传输层错误分类
var (
	// ErrTransportBusy 已有未决请求时再次提交。属调用方串行化契约违规。
	ErrTransportBusy = errors.New("usb: transport busy")
	// ErrTransferTimeout 单次传输在期限内未得到响应
	ErrTransferTimeout = errors.New("usb: transfer timeout")
	// ErrDeviceUnresponsive 重试额度耗尽，设备会话终止
	ErrDeviceUnresponsive = errors.New("usb: device unresponsive")
	// ErrNoPending 没有未决请求可轮询
	ErrNoPending = errors.New("usb: no pending request")
)

// 厂商控制请求号（设备固件约定）
const (
	reqResetState    uint8 = 1 // 空写复位命令管道
	reqSubmitCommand uint8 = 2 // 下发命令帧
	reqReadResponse  uint8 = 3 // 轮询响应
)

// responseBufferLen 响应回读缓冲区固定长度
const responseBufferLen = 1040

// Backend 厂商控制传输后端。实现者：Linux usbfs、测试用内存模拟器。
type Backend interface {
	// WriteVendor 厂商接口 OUT 控制传输
	WriteVendor(request uint8, value, index uint16, data []byte) error
	// ReadVendor 厂商接口 IN 控制传输，最多读 length 字节。
	// 响应尚未就绪时返回 ErrResponseNotReady。
	ReadVendor(request uint8, value, index uint16, length int) ([]byte, error)
	Close() error
}

// ErrResponseNotReady 设备尚未准备好响应（对应管道STALL），可稍后重试
var ErrResponseNotReady = errors.New("usb: response not ready")

// DeviceInfo 枚举到的候选设备
type DeviceInfo struct {
	Bus       uint8
	Address   uint8
	VendorID  uint16
	ProductID uint16
	Serial    coremodel.DeviceSerial // sysfs 序列号，接入后以硬件回读为准
	Path      string                 // devfs 节点路径
}

// Enumerator 设备枚举与打开。实现者：sysfs 扫描、测试桩。
type Enumerator interface {
	// List 返回当前在位的目标设备
	List() ([]DeviceInfo, error)
	// Open 打开设备并返回控制传输后端
	Open(info DeviceInfo) (Backend, error)
}
