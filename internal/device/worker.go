// Package device 实现单设备工作者与设备注册表。
// 工作者独占传输层与状态镜像，把外部期望态更新与硬件事件轮询
// 折叠进同一条有序信箱，逐条串行处理，消除交错竞争。
package device

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/mixerd/internal/coremodel"
	"github.com/taoyao-code/mixerd/internal/devstate"
	"github.com/taoyao-code/mixerd/internal/metrics"
	"github.com/taoyao-code/mixerd/internal/profile"
	"github.com/taoyao-code/mixerd/internal/protocol/xlr"
	"github.com/taoyao-code/mixerd/internal/reconcile"
	"github.com/taoyao-code/mixerd/internal/rules"
	"github.com/taoyao-code/mixerd/internal/usb"
)

// ErrDisconnected 设备已断开，仅能通过重新接入恢复
var ErrDisconnected = errors.New("device: disconnected")

// Phase 工作者生命周期阶段
type Phase int32

const (
	PhaseDisconnected Phase = iota
	PhaseDiscovered
	PhaseInitializing
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseDiscovered:
		return "discovered"
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	}
	return "unknown"
}

// Options 工作者参数
type Options struct {
	// HoldThreshold 静音键长按升级阈值
	HoldThreshold time.Duration
	// PollInterval 硬件事件轮询间隔
	PollInterval time.Duration
	// Profile 初始期望态，nil 使用出厂默认
	Profile *profile.Profile
}

func (o Options) withDefaults() Options {
	if o.HoldThreshold <= 0 {
		o.HoldThreshold = 500 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 20 * time.Millisecond
	}
	return o
}

// EventSink 工作者对外事件出口
type EventSink func(coremodel.Event)

type command struct {
	update func(d *reconcile.Desired) error
	reply  chan error
}

// Worker 单设备控制循环。Run 所在协程独占 desired 与传输层，
// 镜像快照可被任意协程并发读取。
type Worker struct {
	info      usb.DeviceInfo
	transport *usb.Transport
	opts      Options
	log       *zap.Logger
	appm      *metrics.AppMetrics
	events    EventSink

	mailbox chan command
	phase   atomic.Int32

	stateMu sync.RWMutex
	state   *devstate.State

	// 以下字段仅由 Run 协程触碰
	desired      reconcile.Desired
	muteTargets  [coremodel.ChannelCount]coremodel.OutputSet
	coughTargets coremodel.OutputSet
	savedVolumes [coremodel.ChannelCount]uint8
	pressedAt    map[xlr.Button]time.Time
	escalated    map[xlr.Button]bool
	lastButtons  xlr.ButtonStates
	haveButtons  bool
	lastLights   map[xlr.Button]xlr.LightState
}

// NewWorker 创建工作者。events 可为 nil。
func NewWorker(info usb.DeviceInfo, transport *usb.Transport, opts Options, log *zap.Logger, appm *metrics.AppMetrics, events EventSink) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	if events == nil {
		events = func(coremodel.Event) {}
	}
	return &Worker{
		info:      info,
		transport: transport,
		opts:      opts.withDefaults(),
		log:       log.With(zap.String("serial", string(info.Serial))),
		appm:      appm,
		events:    events,
		mailbox:   make(chan command, 32),
		pressedAt: make(map[xlr.Button]time.Time),
		escalated: make(map[xlr.Button]bool),
	}
}

// Phase 返回当前生命周期阶段
func (w *Worker) Phase() Phase { return Phase(w.phase.Load()) }

// Serial 返回设备序列号（初始化完成后以硬件回读为准）
func (w *Worker) Serial() coremodel.DeviceSerial {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	if w.state != nil {
		return w.state.Hardware().Serial
	}
	return w.info.Serial
}

// Snapshot 返回镜像快照；尚未完成初始化时 ok 为 false
func (w *Worker) Snapshot() (devstate.Snapshot, bool) {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	if w.state == nil {
		return devstate.Snapshot{}, false
	}
	return w.state.Snapshot(), true
}

// Update 提交一次期望态修改并等待其调和结果。
// fn 在工作者协程内执行，可安全读改目标态。
func (w *Worker) Update(ctx context.Context, fn func(d *reconcile.Desired) error) error {
	if w.Phase() == PhaseDisconnected {
		return ErrDisconnected
	}
	cmd := command{update: fn, reply: make(chan error, 1)}
	select {
	case w.mailbox <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetProfile 校验并整体替换期望态。结构非法的期望态在调和前被拒绝。
func (w *Worker) SetProfile(ctx context.Context, p profile.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return w.Update(ctx, func(d *reconcile.Desired) error {
		*d = reconcile.FromProfile(p)
		w.muteTargets = p.MuteTargets
		w.coughTargets = p.CoughTargets
		return nil
	})
}

// Run 执行完整生命周期，阻塞到设备断开。
// 返回值说明断开原因：ctx 取消（拔出）或 ErrDeviceUnresponsive。
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		w.phase.Store(int32(PhaseDisconnected))
		_ = w.transport.Close()
	}()

	w.phase.Store(int32(PhaseDiscovered))
	hw, err := w.probe()
	if err != nil {
		return fmt.Errorf("probe %s: %w", w.info.Serial, err)
	}
	w.log = w.log.With(zap.String("variant", hw.Capabilities.Variant.String()))
	w.log.Info("device discovered",
		zap.String("firmware", hw.Firmware.String()),
		zap.String("manufactured", hw.ManufactureDate))

	w.phase.Store(int32(PhaseInitializing))
	if err := w.initialize(hw); err != nil {
		return fmt.Errorf("initialize %s: %w", hw.Serial, err)
	}

	w.phase.Store(int32(PhaseReady))
	w.emit(coremodel.Event{Type: coremodel.EventDeviceAttached, Serial: hw.Serial, Hardware: &hw})
	w.log.Info("device ready")

	err = w.ready(ctx)
	w.emit(coremodel.Event{Type: coremodel.EventDeviceDetached, Serial: hw.Serial})
	return err
}

// probe 能力探测：型号识别与硬件描述回读
func (w *Worker) probe() (coremodel.HardwareInfo, error) {
	variant := coremodel.VariantFromProductID(w.info.ProductID)
	if variant == coremodel.VariantUnknown {
		return coremodel.HardwareInfo{}, fmt.Errorf("unknown product id 0x%04x", w.info.ProductID)
	}
	if err := w.transport.ResetState(); err != nil {
		return coremodel.HardwareInfo{}, err
	}

	// 协议握手：确认固件支持设备控制协议后才继续回读
	body, err := w.transport.Request(xlr.CmdSystemInfo(xlr.SystemInfoSupportsDCP), nil)
	if err != nil {
		return coremodel.HardwareInfo{}, err
	}
	if len(body) < 1 || body[0] == 0 {
		return coremodel.HardwareInfo{}, fmt.Errorf("device does not support control protocol")
	}

	body, err = w.transport.Request(xlr.CmdGetHardwareInfo(xlr.HardwareInfoSerial), nil)
	if err != nil {
		return coremodel.HardwareInfo{}, err
	}
	serial, mfgDate, err := xlr.ParseSerialInfo(body)
	if err != nil {
		return coremodel.HardwareInfo{}, err
	}

	body, err = w.transport.Request(xlr.CmdGetHardwareInfo(xlr.HardwareInfoFirmware), nil)
	if err != nil {
		return coremodel.HardwareInfo{}, err
	}
	firmware, err := xlr.ParseFirmwareInfo(body)
	if err != nil {
		return coremodel.HardwareInfo{}, err
	}

	return coremodel.HardwareInfo{
		Serial:          coremodel.DeviceSerial(serial),
		ManufactureDate: mfgDate,
		Firmware:        firmware,
		Capabilities:    coremodel.CapabilitiesFor(variant),
	}, nil
}

// initialize 建立镜像、回读面板、应用初始期望态
func (w *Worker) initialize(hw coremodel.HardwareInfo) error {
	st := devstate.New(hw)
	w.stateMu.Lock()
	w.state = st
	w.stateMu.Unlock()

	p := profile.Default()
	if w.opts.Profile != nil {
		if err := w.opts.Profile.Validate(); err != nil {
			return err
		}
		p = *w.opts.Profile
	}
	w.desired = reconcile.FromProfile(p)
	w.muteTargets = p.MuteTargets
	w.coughTargets = p.CoughTargets
	w.savedVolumes = p.Volumes

	// 面板回读：记录按键基线，物理推子位置不覆盖期望音量
	body, err := w.transport.Request(xlr.CmdGetButtonStates(), nil)
	if err != nil {
		return err
	}
	states, err := xlr.ParseButtonStates(body)
	if err != nil {
		return err
	}
	w.lastButtons = states
	w.haveButtons = true

	// 接入时已按住的按键以当前时刻为按下起点，长按升级从此刻重新计时
	now := time.Now()
	for b := xlr.Button(0); b < xlr.ButtonCount; b++ {
		if states.IsPressed(b) {
			w.pressedAt[b] = now
		}
	}

	if err := w.reconcilePass(); err != nil {
		return err
	}

	caps := hw.Capabilities
	if caps.ColourTargets {
		for slot := coremodel.Fader(0); slot < coremodel.FaderCount; slot++ {
			op := reconcile.SetFaderDisplay{Fader: slot, Mode: p.FaderDisplays[slot]}
			if err := w.applyOp(st, op); err != nil {
				return err
			}
		}
		for slot := coremodel.Fader(0); slot < coremodel.FaderCount; slot++ {
			if len(p.Scribbles[slot]) == 0 {
				continue
			}
			op := reconcile.WriteScribble{Fader: slot, Data: p.Scribbles[slot]}
			if err := w.applyOp(st, op); err != nil {
				return err
			}
		}
	}
	return w.updateLights(true)
}

// ready 主循环：信箱消息与硬件轮询共用同一串行化点
func (w *Worker) ready(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(w.opts.PollInterval), 1)
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-w.mailbox:
			w.handleCommands(cmd)
		case <-ticker.C:
			// 限流器保证密集的编码器/按键流量不会饿死命令通道
			if !limiter.Allow() {
				continue
			}
			if err := w.pollHardware(); err != nil {
				if errors.Is(err, usb.ErrDeviceUnresponsive) {
					return err
				}
				w.log.Warn("hardware poll failed", zap.Error(err))
			}
		}
	}
}

// handleCommands 折叠信箱中积压的全部更新，执行一次调和
func (w *Worker) handleCommands(first command) {
	pending := []command{first}
	for {
		select {
		case cmd := <-w.mailbox:
			pending = append(pending, cmd)
			continue
		default:
		}
		break
	}

	// 失败的修改整体回滚，避免被拒绝的目标态毒化后续调和
	saved := w.desired.Clone()
	var updateErr error
	for _, cmd := range pending {
		if updateErr == nil {
			updateErr = cmd.update(&w.desired)
		}
	}
	if updateErr == nil {
		updateErr = w.reconcilePass()
		if updateErr == nil {
			updateErr = w.updateLights(false)
		}
	}
	if updateErr != nil {
		w.desired = saved
	}
	for _, cmd := range pending {
		cmd.reply <- updateErr
	}
}

// reconcilePass 计算并应用一个命令批次
func (w *Worker) reconcilePass() error {
	st := w.state
	batch, err := reconcile.Reconcile(w.desired, st.Snapshot())
	if err != nil {
		return err
	}
	if w.appm != nil {
		w.appm.ReconcileBatch.Observe(float64(len(batch)))
	}
	for _, op := range batch {
		if err := w.applyOp(st, op); err != nil {
			return err
		}
	}
	if !batch.Empty() {
		w.emit(coremodel.Event{Type: coremodel.EventStateChanged, Serial: st.Hardware().Serial})
	}
	return nil
}

// applyOp 下发一个逻辑操作的全部线上命令并更新镜像
func (w *Worker) applyOp(st *devstate.State, op reconcile.Op) error {
	wires, err := op.Wires()
	if err != nil {
		return err
	}
	for _, wire := range wires {
		if _, err := w.transport.Request(wire.Cmd, wire.Body); err != nil {
			return fmt.Errorf("%s: %w", op.Describe(), err)
		}
	}
	return op.Apply(st)
}

// pollHardware 轮询按键状态与麦克风电平，把物理事件折入目标态
func (w *Worker) pollHardware() error {
	body, err := w.transport.Request(xlr.CmdGetMicLevel(), nil)
	if err != nil {
		return err
	}
	level, err := xlr.ParseMicLevel(body)
	if err != nil {
		return err
	}
	w.state.ApplyMicLevel(level)

	body, err = w.transport.Request(xlr.CmdGetButtonStates(), nil)
	if err != nil {
		return err
	}
	states, err := xlr.ParseButtonStates(body)
	if err != nil {
		return err
	}

	prev := w.lastButtons
	hadBaseline := w.haveButtons
	w.lastButtons = states
	w.haveButtons = true
	if !hadBaseline {
		return nil
	}

	snap := w.state.Snapshot()
	dirty := false

	// 人为移动推子：只收录观测值，不下发任何命令
	for slot := coremodel.Fader(0); slot < coremodel.FaderCount; slot++ {
		if states.Volumes[slot] == prev.Volumes[slot] {
			continue
		}
		ch := snap.Faders[slot]
		vol := states.Volumes[slot]
		if err := w.state.ApplyVolume(ch, vol); err != nil {
			return err
		}
		w.desired.Volumes[ch] = vol
		w.appm.IncHardwareEvent("volume")
		w.emit(coremodel.Event{
			Type: coremodel.EventVolumeMoved, Serial: snap.Hardware.Serial,
			Channel: &ch, Volume: &vol,
		})
	}

	// 编码器转动
	for e := coremodel.Encoder(0); e < coremodel.EncoderCount; e++ {
		if states.Encoders[e] == prev.Encoders[e] {
			continue
		}
		w.state.ApplyEncoder(e, states.Encoders[e])
		w.desired.Encoders[e] = states.Encoders[e]
		w.appm.IncHardwareEvent("encoder")
		w.emit(coremodel.Event{Type: coremodel.EventStateChanged, Serial: snap.Hardware.Serial})
	}

	now := time.Now()
	for b := xlr.Button(0); b < xlr.ButtonCount; b++ {
		wasPressed := prev.IsPressed(b)
		isPressed := states.IsPressed(b)

		switch {
		case isPressed && !wasPressed:
			w.pressedAt[b] = now
			w.appm.IncHardwareEvent("button")
			w.emitButton(snap.Hardware.Serial, b, true)
			if w.handlePress(b) {
				dirty = true
			}
		case !isPressed && wasPressed:
			held := now.Sub(w.pressedAt[b])
			delete(w.pressedAt, b)
			w.emitButton(snap.Hardware.Serial, b, false)
			if w.handleRelease(b, held) {
				dirty = true
			}
		case isPressed:
			// 按住未放：达到阈值立即升级，不等释放
			if w.handleHeld(b, now.Sub(w.pressedAt[b])) {
				dirty = true
			}
		}
	}

	if dirty {
		if err := w.reconcilePass(); err != nil {
			return err
		}
		return w.updateLights(false)
	}
	return nil
}

// handlePress 处理按下沿。咳嗽键按住即静音。
func (w *Worker) handlePress(b xlr.Button) bool {
	if b != xlr.ButtonCough {
		return false
	}
	w.desired.Cough = coremodel.MuteState{
		Mode:    coremodel.MuteToTargets,
		Targets: w.coughTargets,
	}
	return true
}

// handleHeld 处理按住中的静音键。返回是否改变了目标态。
func (w *Worker) handleHeld(b xlr.Button, held time.Duration) bool {
	ch, ok := w.muteButtonChannel(b)
	if !ok || w.escalated[b] || held < w.opts.HoldThreshold {
		return false
	}
	current := w.desired.Mutes[ch]
	outcome := rules.HoldOutcome(current, w.muteTargets[ch], held, w.opts.HoldThreshold)
	w.escalated[b] = true
	if outcome == current {
		return false
	}
	w.applyMuteOutcome(ch, current, outcome)
	return true
}

// handleRelease 处理静音键与咳嗽键的释放。返回是否改变了目标态。
func (w *Worker) handleRelease(b xlr.Button, held time.Duration) bool {
	if b == xlr.ButtonCough {
		// 咳嗽键按住即静音，释放即恢复，独立于推子静音
		w.desired.Cough = coremodel.MuteState{}
		return true
	}
	ch, ok := w.muteButtonChannel(b)
	if !ok {
		return false
	}
	if w.escalated[b] {
		// 升级已在按住期间生效，释放不再切换
		w.escalated[b] = false
		return false
	}
	current := w.desired.Mutes[ch]
	outcome := rules.HoldOutcome(current, w.muteTargets[ch], held, w.opts.HoldThreshold)
	if outcome == current {
		return false
	}
	w.applyMuteOutcome(ch, current, outcome)
	return true
}

// applyMuteOutcome 写入静音结果并处理音量侧效（电动推子下行/恢复）
func (w *Worker) applyMuteOutcome(ch coremodel.Channel, current, outcome coremodel.MuteState) {
	caps := w.state.Capabilities()
	w.desired.Mutes[ch] = outcome

	if current.Unmuted() && !outcome.Unmuted() {
		w.savedVolumes[ch] = w.desired.Volumes[ch]
		if vol, write := rules.VolumeOnMute(caps); write {
			w.desired.Volumes[ch] = vol
			w.emit(coremodel.Event{
				Type: coremodel.EventVolumeDescend, Serial: w.state.Hardware().Serial,
				Channel: &ch, Volume: &vol,
			})
		}
	}
	if !current.Unmuted() && outcome.Unmuted() {
		snap := w.state.Snapshot()
		if vol, write := rules.VolumeOnUnmute(caps, snap.Volumes[ch], w.savedVolumes[ch]); write {
			w.desired.Volumes[ch] = vol
		}
	}
}

// muteButtonChannel 推子静音键 → 所控通道
func (w *Worker) muteButtonChannel(b xlr.Button) (coremodel.Channel, bool) {
	if b < xlr.ButtonFader1Mute || b > xlr.ButtonFader4Mute {
		return 0, false
	}
	slot := coremodel.Fader(b - xlr.ButtonFader1Mute)
	snap := w.state.Snapshot()
	return snap.Faders[slot], true
}

// updateLights 由静音状态派生按键灯并在变化时写出
func (w *Worker) updateLights(force bool) error {
	snap := w.state.Snapshot()
	lights := make(map[xlr.Button]xlr.LightState, coremodel.FaderCount+2)
	for slot := coremodel.Fader(0); slot < coremodel.FaderCount; slot++ {
		ch := snap.Faders[slot]
		b := xlr.FaderMuteButton(slot)
		switch snap.Mutes[ch].Mode {
		case coremodel.MuteToAll:
			lights[b] = xlr.LightFlashing
		case coremodel.MuteToTargets:
			lights[b] = xlr.LightOn
		default:
			// 咳嗽键生效时麦克风推子灯也亮，二者互不清除
			if ch == coremodel.ChannelMic && rules.EffectiveMicMute(snap.Mutes[ch], snap.Cough) {
				lights[b] = xlr.LightOn
			} else {
				lights[b] = xlr.LightDimmed
			}
		}
	}
	if !snap.Cough.Unmuted() {
		lights[xlr.ButtonCough] = xlr.LightOn
	} else {
		lights[xlr.ButtonCough] = xlr.LightDimmed
	}

	if !force && maps.Equal(lights, w.lastLights) {
		return nil
	}
	if err := w.applyOp(w.state, reconcile.WriteButtonLights{States: lights}); err != nil {
		return err
	}
	w.lastLights = lights
	return nil
}

// CoughPress IPC侧触发的咳嗽键按下语义。
// 物理按键路径在 pollHardware 中走同一逻辑。
func (w *Worker) CoughPress(ctx context.Context, pressed bool) error {
	return w.Update(ctx, func(d *reconcile.Desired) error {
		if pressed {
			d.Cough = coremodel.MuteState{Mode: coremodel.MuteToTargets, Targets: w.coughTargets}
		} else {
			d.Cough = coremodel.MuteState{}
		}
		return nil
	})
}

func (w *Worker) emit(ev coremodel.Event) {
	ev.At = time.Now()
	w.events(ev)
}

func (w *Worker) emitButton(serial coremodel.DeviceSerial, b xlr.Button, pressed bool) {
	p := pressed
	w.emit(coremodel.Event{
		Type: coremodel.EventButton, Serial: serial,
		Button: b.String(), Pressed: &p,
	})
}
