package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/mixerd/internal/coremodel"
	"github.com/taoyao-code/mixerd/internal/device"
	"github.com/taoyao-code/mixerd/internal/profile"
	"github.com/taoyao-code/mixerd/internal/protocol/xlr"
	"github.com/taoyao-code/mixerd/internal/reconcile"
	"github.com/taoyao-code/mixerd/internal/rules"
)

// devicePatch 期望态增量。所有字段可选，命名沿用通道/槽位/键的字符串表示。
type devicePatch struct {
	Volumes map[string]uint8     `json:"volumes,omitempty"`
	Mutes   map[string]mutePatch `json:"mutes,omitempty"`
	// Faders 槽位到通道的指派，目标槽位已占用时执行换位
	Faders  map[string]string        `json:"faders,omitempty"`
	Routing []routingPatch           `json:"routing,omitempty"`
	Effects map[string]int32         `json:"effects,omitempty"`
	Colours map[uint8]xlr.ColourPair `json:"colours,omitempty"`
	// Cough 咳嗽键按下/释放，独立于推子静音
	Cough *bool `json:"cough,omitempty"`
}

type mutePatch struct {
	Muted   bool     `json:"muted"`
	Targets []string `json:"targets,omitempty"`
}

type routingPatch struct {
	Input     string `json:"input"`
	Output    string `json:"output"`
	Connected bool   `json:"connected"`
}

func (s *Server) listDevices(c *gin.Context) {
	devices := s.hub.Devices()
	if devices == nil {
		devices = []coremodel.HardwareInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (s *Server) getDevice(c *gin.Context) {
	w, ok := s.hub.Get(coremodel.DeviceSerial(c.Param("serial")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not attached"})
		return
	}
	snap, ok := w.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "device initializing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"phase": w.Phase().String(), "state": snap})
}

func (s *Server) patchDevice(c *gin.Context) {
	w, ok := s.hub.Get(coremodel.DeviceSerial(c.Param("serial")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not attached"})
		return
	}

	var patch devicePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := w.Update(c.Request.Context(), func(d *reconcile.Desired) error {
		return applyPatch(d, patch)
	})
	if err == nil && patch.Cough != nil {
		err = w.CoughPress(c.Request.Context(), *patch.Cough)
	}
	switch {
	case err == nil:
		snap, _ := w.Snapshot()
		c.JSON(http.StatusOK, gin.H{"state": snap})
	case errors.Is(err, reconcile.ErrUnsupportedCommand):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, device.ErrDisconnected):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// exportProfile 从当前镜像提取可持久化的期望态，供外部收集方落盘。
// 瞬态覆盖与全量静音不进入导出结果。
func (s *Server) exportProfile(c *gin.Context) {
	w, ok := s.hub.Get(coremodel.DeviceSerial(c.Param("serial")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not attached"})
		return
	}
	snap, ok := w.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "device initializing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile.FromSnapshot(snap)})
}

// applyPatch 把增量折入目标态。任何命名解析失败都整体拒绝。
func applyPatch(d *reconcile.Desired, patch devicePatch) error {
	for _, edge := range patch.Routing {
		in, ok := coremodel.InputByName(edge.Input)
		if !ok {
			return fmt.Errorf("unknown input channel %q", edge.Input)
		}
		out, ok := coremodel.OutputByName(edge.Output)
		if !ok {
			return fmt.Errorf("unknown output channel %q", edge.Output)
		}
		d.Routing = d.Routing.WithEdge(in, out, edge.Connected)
	}

	for slotName, chName := range patch.Faders {
		slot, ok := coremodel.FaderByName(slotName)
		if !ok {
			return fmt.Errorf("unknown fader slot %q", slotName)
		}
		ch, ok := coremodel.ChannelByName(chName)
		if !ok {
			return fmt.Errorf("unknown channel %q", chName)
		}
		d.Faders = rules.PlanFaderAssign(d.Faders, slot, ch)
	}

	for chName, vol := range patch.Volumes {
		ch, ok := coremodel.ChannelByName(chName)
		if !ok {
			return fmt.Errorf("unknown channel %q", chName)
		}
		d.Volumes[ch] = vol
	}

	for chName, mute := range patch.Mutes {
		ch, ok := coremodel.ChannelByName(chName)
		if !ok {
			return fmt.Errorf("unknown channel %q", chName)
		}
		if !mute.Muted {
			d.Mutes[ch] = coremodel.MuteState{}
			continue
		}
		var targets coremodel.OutputSet
		for _, name := range mute.Targets {
			out, ok := coremodel.OutputByName(name)
			if !ok {
				return fmt.Errorf("unknown output channel %q", name)
			}
			targets = targets.Add(out)
		}
		d.Mutes[ch] = coremodel.MuteState{Mode: coremodel.MuteToTargets, Targets: targets}
	}

	for keyName, value := range patch.Effects {
		key, ok := xlr.EffectKeyByName(keyName)
		if !ok {
			return fmt.Errorf("unknown effect key %q", keyName)
		}
		if d.Effects == nil {
			d.Effects = make(map[xlr.EffectKey]int32)
		}
		d.Effects[key] = value
	}

	for target, pair := range patch.Colours {
		if int(target) >= xlr.ColourTargetCount {
			return fmt.Errorf("colour target %d out of range", target)
		}
		if d.Colours == nil {
			d.Colours = make(map[xlr.ColourTarget]xlr.ColourPair)
		}
		d.Colours[xlr.ColourTarget(target)] = pair
	}
	return nil
}

// streamEvents 以 server-sent events 推送核心事件流
func (s *Server) streamEvents(c *gin.Context) {
	id, events := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
