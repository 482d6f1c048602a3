package coremodel

import "fmt"

// Variant 设备型号
type Variant uint8

const (
	VariantUnknown Variant = iota
	// VariantFull 全功能型号：电动推子、灯光颜色、效果旋钮
	VariantFull
	// VariantMini 精简型号：无电动推子，无效果区
	VariantMini
)

func (v Variant) String() string {
	switch v {
	case VariantFull:
		return "full"
	case VariantMini:
		return "mini"
	}
	return "unknown"
}

// USB 厂商/产品ID
const (
	VendorID      uint16 = 0x1220
	ProductIDFull uint16 = 0x8fe0
	ProductIDMini uint16 = 0x8fe4
)

// VariantFromProductID 由USB产品ID识别型号
func VariantFromProductID(pid uint16) Variant {
	switch pid {
	case ProductIDFull:
		return VariantFull
	case ProductIDMini:
		return VariantMini
	}
	return VariantUnknown
}

// Capabilities 单台设备的能力描述，接入时确定后不再变化
type Capabilities struct {
	Variant         Variant `json:"variant"`
	MotorizedFaders bool    `json:"motorized_faders"`
	ColourTargets   bool    `json:"colour_targets"`
	EffectEncoders  bool    `json:"effect_encoders"`
}

// CapabilitiesFor 返回型号对应的能力集
func CapabilitiesFor(v Variant) Capabilities {
	switch v {
	case VariantFull:
		return Capabilities{Variant: v, MotorizedFaders: true, ColourTargets: true, EffectEncoders: true}
	case VariantMini:
		return Capabilities{Variant: v}
	}
	return Capabilities{Variant: VariantUnknown}
}

// FirmwareVersion 固件版本四段式
type FirmwareVersion struct {
	Major uint32 `json:"major"`
	Minor uint32 `json:"minor"`
	Patch uint32 `json:"patch"`
	Build uint32 `json:"build"`
}

func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Patch, v.Build)
}

// HardwareInfo 接入时读回的硬件描述
type HardwareInfo struct {
	Serial          DeviceSerial    `json:"serial"`
	ManufactureDate string          `json:"manufacture_date"`
	Firmware        FirmwareVersion `json:"firmware"`
	Capabilities    Capabilities    `json:"capabilities"`
}
