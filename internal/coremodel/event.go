package coremodel

import "time"

// EventType 核心对外事件类型
type EventType string

const (
	// EventDeviceAttached 设备接入并完成初始化
	EventDeviceAttached EventType = "device_attached"
	// EventDeviceDetached 设备拔出或失去响应
	EventDeviceDetached EventType = "device_detached"
	// EventStateChanged 设备状态镜像发生变化（命令确认或物理操作）
	EventStateChanged EventType = "state_changed"
	// EventVolumeMoved 人为移动推子导致的音量变化
	EventVolumeMoved EventType = "volume_moved"
	// EventVolumeDescend 静音触发的音量下降动画（仅电动推子型号，非权威状态）
	EventVolumeDescend EventType = "volume_descend"
	// EventButton 物理按键按下/释放
	EventButton EventType = "button"
)

// Event 核心对外事件
type Event struct {
	Type   EventType    `json:"type"`
	Serial DeviceSerial `json:"serial"`
	At     time.Time    `json:"at"`

	// Hardware 仅 device_attached 事件携带
	Hardware *HardwareInfo `json:"hardware,omitempty"`
	// Channel / Volume 仅音量类事件携带
	Channel *Channel `json:"channel,omitempty"`
	Volume  *uint8   `json:"volume,omitempty"`
	// Button / Pressed 仅按键事件携带
	Button  string `json:"button,omitempty"`
	Pressed *bool  `json:"pressed,omitempty"`
}
