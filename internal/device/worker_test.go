package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/mixerd/internal/coremodel"
	"github.com/taoyao-code/mixerd/internal/profile"
	"github.com/taoyao-code/mixerd/internal/protocol/xlr"
	"github.com/taoyao-code/mixerd/internal/reconcile"
	"github.com/taoyao-code/mixerd/internal/usb"
)

type eventLog struct {
	mu     sync.Mutex
	events []coremodel.Event
}

func (l *eventLog) sink(ev coremodel.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(t coremodel.EventType) []coremodel.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []coremodel.Event
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func pidFor(variant coremodel.Variant) uint16 {
	if variant == coremodel.VariantMini {
		return coremodel.ProductIDMini
	}
	return coremodel.ProductIDFull
}

func startWorker(t *testing.T, variant coremodel.Variant, p *profile.Profile) (*Worker, *usb.Emulator, *eventLog) {
	t.Helper()
	em := usb.NewEmulator(variant, "SER123")
	transport := usb.NewTransport(em, usb.Options{
		Timeout:      200 * time.Millisecond,
		PollInterval: time.Millisecond,
		MaxRetries:   2,
	}, zap.NewNop(), nil)

	log := &eventLog{}
	w := NewWorker(usb.DeviceInfo{
		VendorID:  coremodel.VendorID,
		ProductID: pidFor(variant),
		Serial:    "SER123",
	}, transport, Options{
		HoldThreshold: 80 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		Profile:       p,
	}, zap.NewNop(), nil, log.sink)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	require.Eventually(t, func() bool { return w.Phase() == PhaseReady },
		2*time.Second, 5*time.Millisecond, "worker never became ready")
	return w, em, log
}

func TestWorkerAttachAppliesDefaults(t *testing.T) {
	w, em, log := startWorker(t, coremodel.VariantFull, nil)

	snap, ok := w.Snapshot()
	require.True(t, ok)
	assert.Equal(t, coremodel.DeviceSerial("SER123"), snap.Hardware.Serial)
	assert.Equal(t, coremodel.ChannelMic, snap.Faders[coremodel.FaderA])
	assert.Equal(t, coremodel.ChannelMusic, snap.Faders[coremodel.FaderB])
	assert.EqualValues(t, 255, snap.Volume(coremodel.ChannelMusic))
	assert.True(t, snap.Routing.Connected(coremodel.InputMic, coremodel.OutputChatMic))

	// 8个源通道各两路路由写
	assert.Len(t, em.ReceivedByClass(xlr.ClassSetRouting), 16)
	// 零值镜像中槽位A已是mic，仅余三个槽位需要下发
	assert.Len(t, em.ReceivedByClass(xlr.ClassSetFader), 3)
	// 全功能型号写四个推子表显示模式
	assert.Len(t, em.ReceivedByClass(xlr.ClassSetFaderDisplay), 4)
	assert.NotEmpty(t, em.ReceivedByClass(xlr.ClassSetButtonStates))

	attached := log.ofType(coremodel.EventDeviceAttached)
	require.Len(t, attached, 1)
	require.NotNil(t, attached[0].Hardware)
	assert.Equal(t, coremodel.VariantFull, attached[0].Hardware.Capabilities.Variant)
	assert.Equal(t, "1.2.3.100", attached[0].Hardware.Firmware.String())
}

func TestWorkerUpdateReconciles(t *testing.T) {
	w, em, _ := startWorker(t, coremodel.VariantFull, nil)
	em.ClearReceived()

	err := w.Update(context.Background(), func(d *reconcile.Desired) error {
		d.Volumes[coremodel.ChannelMusic] = 100
		return nil
	})
	require.NoError(t, err)

	snap, _ := w.Snapshot()
	assert.EqualValues(t, 100, snap.Volume(coremodel.ChannelMusic))

	frames := em.ReceivedByClass(xlr.ClassSetVolume)
	require.Len(t, frames, 1)
	assert.EqualValues(t, uint16(coremodel.ChannelMusic), frames[0].Command.Sub)
	assert.Equal(t, []byte{100}, frames[0].Body)
}

func TestWorkerRejectsInvalidProfile(t *testing.T) {
	w, _, _ := startWorker(t, coremodel.VariantFull, nil)

	bad := profile.Default()
	bad.Faders[coremodel.FaderD] = coremodel.ChannelMic
	err := w.SetProfile(context.Background(), bad)
	require.ErrorIs(t, err, profile.ErrProfileInvariant)
}

func TestPhysicalVolumeSyncIssuesNoCommand(t *testing.T) {
	w, em, log := startWorker(t, coremodel.VariantFull, nil)
	em.ClearReceived()

	em.SetPanelVolume(0, 42)
	require.Eventually(t, func() bool {
		snap, _ := w.Snapshot()
		return snap.Volume(coremodel.ChannelMic) == 42
	}, 2*time.Second, 5*time.Millisecond)

	assert.Empty(t, em.ReceivedByClass(xlr.ClassSetVolume),
		"human fader move must not echo a volume command")

	moved := log.ofType(coremodel.EventVolumeMoved)
	require.NotEmpty(t, moved)
	assert.Equal(t, coremodel.ChannelMic, *moved[0].Channel)
	assert.EqualValues(t, 42, *moved[0].Volume)
}

func TestMuteQuickPressTogglesBaseMute(t *testing.T) {
	p := profile.Default()
	p.MuteTargets[coremodel.ChannelMic] = coremodel.NewOutputSet(coremodel.OutputHeadphones)
	w, em, _ := startWorker(t, coremodel.VariantFull, &p)

	em.SetPressed(1 << xlr.ButtonFader1Mute)
	time.Sleep(25 * time.Millisecond)
	em.SetPressed(0)

	require.Eventually(t, func() bool {
		snap, _ := w.Snapshot()
		return snap.Mute(coremodel.ChannelMic).Mode == coremodel.MuteToTargets
	}, 2*time.Second, 5*time.Millisecond)

	snap, _ := w.Snapshot()
	ov, hasOv := snap.Overlay(coremodel.InputMic)
	require.True(t, hasOv, "base mute must install a routing overlay")
	assert.True(t, ov.Captured.Has(coremodel.OutputHeadphones))
	assert.True(t, snap.Routing.Connected(coremodel.InputMic, coremodel.OutputHeadphones),
		"base routing stays intact in the mirror while the overlay is active")

	// 再次快按解除静音，覆盖精确恢复
	em.SetPressed(1 << xlr.ButtonFader1Mute)
	time.Sleep(25 * time.Millisecond)
	em.SetPressed(0)

	require.Eventually(t, func() bool {
		snap, _ := w.Snapshot()
		_, hasOv := snap.Overlay(coremodel.InputMic)
		return snap.Mute(coremodel.ChannelMic).Unmuted() && !hasOv
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHoldEscalatesWhileStillPressed(t *testing.T) {
	p := profile.Default()
	p.MuteTargets[coremodel.ChannelMic] = coremodel.NewOutputSet(coremodel.OutputHeadphones)
	w, em, _ := startWorker(t, coremodel.VariantFull, &p)

	em.SetPressed(1 << xlr.ButtonFader1Mute)
	require.Eventually(t, func() bool {
		snap, _ := w.Snapshot()
		return snap.Mute(coremodel.ChannelMic).Mode == coremodel.MuteToAll
	}, 2*time.Second, 5*time.Millisecond, "hold past threshold must escalate before release")

	// 升级后的释放不再切换
	em.SetPressed(0)
	time.Sleep(100 * time.Millisecond)
	snap, _ := w.Snapshot()
	assert.Equal(t, coremodel.MuteToAll, snap.Mute(coremodel.ChannelMic).Mode)
}

func TestCoughIndependentOfFaderMuteState(t *testing.T) {
	p := profile.Default()
	p.Muted[coremodel.ChannelMic] = true
	p.MuteTargets[coremodel.ChannelMic] = coremodel.NewOutputSet(coremodel.OutputHeadphones)
	w, em, _ := startWorker(t, coremodel.VariantFull, &p)

	em.SetPressed(1 << xlr.ButtonCough)
	require.Eventually(t, func() bool {
		snap, _ := w.Snapshot()
		return !snap.Cough.Unmuted()
	}, 2*time.Second, 5*time.Millisecond)

	em.SetPressed(0)
	require.Eventually(t, func() bool {
		snap, _ := w.Snapshot()
		return snap.Cough.Unmuted()
	}, 2*time.Second, 5*time.Millisecond)

	// 咳嗽键全程不影响推子静音
	snap, _ := w.Snapshot()
	assert.Equal(t, coremodel.MuteToTargets, snap.Mute(coremodel.ChannelMic).Mode)
}

func TestMiniVariantEmitsNoGatedCommands(t *testing.T) {
	_, em, _ := startWorker(t, coremodel.VariantMini, nil)

	assert.Empty(t, em.ReceivedByClass(xlr.ClassSetVolume),
		"no volume commands without motorized faders")
	assert.Empty(t, em.ReceivedByClass(xlr.ClassSetFaderDisplay))
	assert.Empty(t, em.ReceivedByClass(xlr.ClassSetColourMap))
}

func TestAttachWithHeldButtonDoesNotEscalate(t *testing.T) {
	// 接入时已按住的静音键不得立刻升级：按住计时从接入时刻起算
	em := usb.NewEmulator(coremodel.VariantFull, "SER123")
	em.SetPressed(1 << xlr.ButtonFader1Mute)
	transport := usb.NewTransport(em, usb.Options{
		Timeout:      200 * time.Millisecond,
		PollInterval: time.Millisecond,
		MaxRetries:   2,
	}, zap.NewNop(), nil)

	log := &eventLog{}
	w := NewWorker(usb.DeviceInfo{
		VendorID:  coremodel.VendorID,
		ProductID: pidFor(coremodel.VariantFull),
		Serial:    "SER123",
	}, transport, Options{
		HoldThreshold: 10 * time.Second,
		PollInterval:  5 * time.Millisecond,
	}, zap.NewNop(), nil, log.sink)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
	require.Eventually(t, func() bool { return w.Phase() == PhaseReady },
		2*time.Second, 5*time.Millisecond, "worker never became ready")

	time.Sleep(150 * time.Millisecond)
	snap, ok := w.Snapshot()
	require.True(t, ok)
	assert.True(t, snap.Mute(coremodel.ChannelMic).Unmuted(),
		"button held across attach must not count as a long hold")
}

func TestScribbleWrittenAtInitialize(t *testing.T) {
	p := profile.Default()
	p.Scribbles[coremodel.FaderA] = make([]byte, xlr.ScribbleLen)
	p.Scribbles[coremodel.FaderA][0] = 0xAA
	_, em, _ := startWorker(t, coremodel.VariantFull, &p)

	frames := em.ReceivedByClass(xlr.ClassSetScribble)
	require.Len(t, frames, 1, "only the populated scribble slot is written")
	assert.EqualValues(t, uint16(coremodel.FaderA), frames[0].Command.Sub)
	require.Len(t, frames[0].Body, xlr.ScribbleLen)
	assert.EqualValues(t, 0xAA, frames[0].Body[0])
}

func TestMiniVariantSkipsScribbles(t *testing.T) {
	p := profile.Default()
	p.Scribbles[coremodel.FaderB] = make([]byte, xlr.ScribbleLen)
	_, em, _ := startWorker(t, coremodel.VariantMini, &p)

	assert.Empty(t, em.ReceivedByClass(xlr.ClassSetScribble))
}

func TestMicLevelPolledIntoSnapshot(t *testing.T) {
	w, em, _ := startWorker(t, coremodel.VariantFull, nil)

	em.SetMicLevel(777)
	require.Eventually(t, func() bool {
		snap, _ := w.Snapshot()
		return snap.MicLevel == 777
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCoughLightsMicMuteButton(t *testing.T) {
	w, em, _ := startWorker(t, coremodel.VariantFull, nil)
	em.ClearReceived()

	em.SetPressed(1 << xlr.ButtonCough)
	require.Eventually(t, func() bool {
		snap, _ := w.Snapshot()
		return !snap.Cough.Unmuted()
	}, 2*time.Second, 5*time.Millisecond)

	// 麦克风在槽位A，咳嗽键生效时其推子静音灯同步点亮
	frames := em.ReceivedByClass(xlr.ClassSetButtonStates)
	require.NotEmpty(t, frames)
	want := xlr.BuildButtonStates(map[xlr.Button]xlr.LightState{
		xlr.ButtonFader1Mute: xlr.LightOn,
		xlr.ButtonCough:      xlr.LightOn,
	})
	assert.Equal(t, want[:], frames[len(frames)-1].Body)
}

func TestWorkerDetachesOnUnresponsiveDevice(t *testing.T) {
	w, em, log := startWorker(t, coremodel.VariantFull, nil)

	require.NoError(t, em.Close())
	require.Eventually(t, func() bool { return w.Phase() == PhaseDisconnected },
		5*time.Second, 10*time.Millisecond)

	assert.NotEmpty(t, log.ofType(coremodel.EventDeviceDetached))
}
