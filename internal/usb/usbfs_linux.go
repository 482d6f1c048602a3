//go:build linux

package usb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/taoyao-code/mixerd/internal/coremodel"
)

// Linux usbfs 实现：通过 /dev/bus/usb 节点的 ioctl 做厂商控制传输，
// 通过 sysfs 枚举在位设备。

const (
	sysfsUSBPath = "/sys/bus/usb/devices"
	devfsUSBPath = "/dev/bus/usb"

	// usbdevfs ioctl 请求码（64位布局）
	usbdevfsControl          = 0xc0185500 // _IOWR('U', 0, usbdevfs_ctrltransfer)
	usbdevfsClaimInterface   = 0x8004550f // _IOR('U', 15, unsigned int)
	usbdevfsReleaseInterface = 0x80045510 // _IOR('U', 16, unsigned int)

	// bmRequestType：厂商类请求，接收方为接口
	requestTypeVendorOut uint8 = 0x41
	requestTypeVendorIn  uint8 = 0xc1

	controlTimeoutMs = 2000
)

// ctrlTransfer 与内核 struct usbdevfs_ctrltransfer 布局一致
type ctrlTransfer struct {
	requestType uint8
	request     uint8
	value       uint16
	index       uint16
	length      uint16
	timeout     uint32
	data        unsafe.Pointer
}

// UsbfsBackend 基于 usbfs 的控制传输后端
type UsbfsBackend struct {
	f       *os.File
	claimed bool
}

// OpenUsbfs 打开设备节点并认领厂商接口0
func OpenUsbfs(path string) (*UsbfsBackend, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("usb: open %s: %w", path, err)
	}
	b := &UsbfsBackend{f: f}
	iface := uint32(0)
	if err := b.ioctl(usbdevfsClaimInterface, unsafe.Pointer(&iface)); err == nil {
		b.claimed = true
	}
	return b, nil
}

func (b *UsbfsBackend) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// WriteVendor 厂商 OUT 控制传输
func (b *UsbfsBackend) WriteVendor(request uint8, value, index uint16, data []byte) error {
	ct := ctrlTransfer{
		requestType: requestTypeVendorOut,
		request:     request,
		value:       value,
		index:       index,
		length:      uint16(len(data)),
		timeout:     controlTimeoutMs,
	}
	if len(data) > 0 {
		ct.data = unsafe.Pointer(&data[0])
	}
	return b.ioctl(usbdevfsControl, unsafe.Pointer(&ct))
}

// ReadVendor 厂商 IN 控制传输。管道STALL映射为 ErrResponseNotReady。
func (b *UsbfsBackend) ReadVendor(request uint8, value, index uint16, length int) ([]byte, error) {
	buf := make([]byte, length)
	ct := ctrlTransfer{
		requestType: requestTypeVendorIn,
		request:     request,
		value:       value,
		index:       index,
		length:      uint16(length),
		timeout:     controlTimeoutMs,
	}
	if length > 0 {
		ct.data = unsafe.Pointer(&buf[0])
	}
	n, _, errno := unix.Syscall(unix.SYS_IOCTL, b.f.Fd(), usbdevfsControl, uintptr(unsafe.Pointer(&ct)))
	if errno != 0 {
		if errors.Is(errno, unix.EPIPE) {
			return nil, ErrResponseNotReady
		}
		return nil, errno
	}
	return buf[:int(n)], nil
}

// Close 释放接口并关闭节点
func (b *UsbfsBackend) Close() error {
	if b.claimed {
		iface := uint32(0)
		_ = b.ioctl(usbdevfsReleaseInterface, unsafe.Pointer(&iface))
	}
	return b.f.Close()
}

// SysfsEnumerator 基于 sysfs 的设备枚举器
type SysfsEnumerator struct {
	// SysfsPath / DevfsPath 可覆盖，用于测试
	SysfsPath string
	DevfsPath string
}

// NewSysfsEnumerator 创建默认路径的枚举器
func NewSysfsEnumerator() *SysfsEnumerator {
	return &SysfsEnumerator{SysfsPath: sysfsUSBPath, DevfsPath: devfsUSBPath}
}

// List 扫描 sysfs，返回匹配厂商/产品ID的在位设备
func (e *SysfsEnumerator) List() ([]DeviceInfo, error) {
	entries, err := os.ReadDir(e.SysfsPath)
	if err != nil {
		return nil, err
	}

	var devices []DeviceInfo
	for _, entry := range entries {
		name := entry.Name()
		// 跳过根Hub（usbN）与接口条目（含冒号）
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}
		info, err := e.parseDevice(filepath.Join(e.SysfsPath, name))
		if err != nil {
			continue
		}
		if info.VendorID != coremodel.VendorID {
			continue
		}
		if coremodel.VariantFromProductID(info.ProductID) == coremodel.VariantUnknown {
			continue
		}
		devices = append(devices, info)
	}
	return devices, nil
}

func (e *SysfsEnumerator) parseDevice(dir string) (DeviceInfo, error) {
	vid, err := readHexAttr(dir, "idVendor")
	if err != nil {
		return DeviceInfo{}, err
	}
	pid, err := readHexAttr(dir, "idProduct")
	if err != nil {
		return DeviceInfo{}, err
	}
	bus, err := readIntAttr(dir, "busnum")
	if err != nil {
		return DeviceInfo{}, err
	}
	dev, err := readIntAttr(dir, "devnum")
	if err != nil {
		return DeviceInfo{}, err
	}
	serial, _ := readStrAttr(dir, "serial")

	return DeviceInfo{
		Bus:       uint8(bus),
		Address:   uint8(dev),
		VendorID:  uint16(vid),
		ProductID: uint16(pid),
		Serial:    coremodel.DeviceSerial(serial),
		Path:      filepath.Join(e.DevfsPath, fmt.Sprintf("%03d", bus), fmt.Sprintf("%03d", dev)),
	}, nil
}

// Open 打开枚举到的设备
func (e *SysfsEnumerator) Open(info DeviceInfo) (Backend, error) {
	return OpenUsbfs(info.Path)
}

func readStrAttr(dir, name string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func readHexAttr(dir, name string) (uint64, error) {
	s, err := readStrAttr(dir, name)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 16, 16)
}

func readIntAttr(dir, name string) (uint64, error) {
	s, err := readStrAttr(dir, name)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 10, 8)
}
