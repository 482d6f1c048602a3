package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/mixerd/internal/coremodel"
	"github.com/taoyao-code/mixerd/internal/metrics"
	"github.com/taoyao-code/mixerd/internal/usb"
)

// RegistryOptions 注册表参数
type RegistryOptions struct {
	// ScanInterval 热插拔扫描间隔
	ScanInterval time.Duration
	// Worker 每台设备的工作者参数
	Worker Options
	// Transport 每台设备的传输层参数
	Transport usb.Options
}

func (o RegistryOptions) withDefaults() RegistryOptions {
	if o.ScanInterval <= 0 {
		o.ScanInterval = time.Second
	}
	return o
}

type entry struct {
	worker *Worker
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry 全部在位设备的显式注册表，按序列号键控。
// 接入/拔出即插入/移除；每个镜像的所有权归其工作者独有。
type Registry struct {
	enum usb.Enumerator
	opts RegistryOptions
	log  *zap.Logger
	appm *metrics.AppMetrics

	mu      sync.RWMutex
	workers map[coremodel.DeviceSerial]*entry
	subs    map[uuid.UUID]chan coremodel.Event

	wg sync.WaitGroup
}

// NewRegistry 创建注册表
func NewRegistry(enum usb.Enumerator, opts RegistryOptions, log *zap.Logger, appm *metrics.AppMetrics) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		enum:    enum,
		opts:    opts.withDefaults(),
		log:     log,
		appm:    appm,
		workers: make(map[coremodel.DeviceSerial]*entry),
		subs:    make(map[uuid.UUID]chan coremodel.Event),
	}
}

// Run 热插拔扫描循环，阻塞到 ctx 取消并等待全部工作者退出
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.ScanInterval)
	defer ticker.Stop()

	r.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			r.scan(ctx)
		}
	}
}

// scan 一轮枚举：新设备启动工作者，消失的设备撤销其上下文
func (r *Registry) scan(ctx context.Context) {
	infos, err := r.enum.List()
	if err != nil {
		r.log.Warn("device enumeration failed", zap.Error(err))
		return
	}

	present := make(map[coremodel.DeviceSerial]usb.DeviceInfo, len(infos))
	for _, info := range infos {
		if coremodel.VariantFromProductID(info.ProductID) == coremodel.VariantUnknown {
			continue
		}
		present[info.Serial] = info
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for serial, info := range present {
		if _, running := r.workers[serial]; running {
			continue
		}
		r.spawnLocked(ctx, serial, info)
	}
	for serial, e := range r.workers {
		if _, ok := present[serial]; !ok {
			r.log.Info("device gone from bus", zap.String("serial", string(serial)))
			e.cancel()
		}
	}
}

func (r *Registry) spawnLocked(ctx context.Context, serial coremodel.DeviceSerial, info usb.DeviceInfo) {
	backend, err := r.enum.Open(info)
	if err != nil {
		r.log.Warn("open device failed",
			zap.String("serial", string(serial)), zap.Error(err))
		return
	}

	transport := usb.NewTransport(backend, r.opts.Transport, r.log, r.appm)
	worker := NewWorker(info, transport, r.opts.Worker, r.log, r.appm, r.publish)

	wctx, cancel := context.WithCancel(ctx)
	e := &entry{worker: worker, cancel: cancel, done: make(chan struct{})}
	r.workers[serial] = e
	if r.appm != nil {
		r.appm.DevicesAttached.Inc()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(e.done)
		err := worker.Run(wctx)
		cancel()

		reason := "unplug"
		if err != nil && !errors.Is(err, context.Canceled) {
			reason = "unresponsive"
			r.log.Warn("device worker terminated",
				zap.String("serial", string(serial)), zap.Error(err))
		}
		if r.appm != nil {
			r.appm.DevicesAttached.Dec()
			r.appm.DetachTotal.WithLabelValues(reason).Inc()
		}

		r.mu.Lock()
		delete(r.workers, serial)
		r.mu.Unlock()
	}()
}

// Get 按序列号查找工作者（枚举序列号或硬件回读序列号均可）
func (r *Registry) Get(serial coremodel.DeviceSerial) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.workers[serial]; ok {
		return e.worker, true
	}
	for _, e := range r.workers {
		if e.worker.Serial() == serial {
			return e.worker, true
		}
	}
	return nil, false
}

// Devices 返回已就绪设备的硬件描述
func (r *Registry) Devices() []coremodel.HardwareInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]coremodel.HardwareInfo, 0, len(r.workers))
	for _, e := range r.workers {
		if e.worker.Phase() != PhaseReady {
			continue
		}
		if snap, ok := e.worker.Snapshot(); ok {
			out = append(out, snap.Hardware)
		}
	}
	return out
}

// Subscribe 订阅核心事件流。返回订阅ID与只读通道，
// 通道缓冲满时事件被丢弃而不是阻塞工作者。
func (r *Registry) Subscribe() (uuid.UUID, <-chan coremodel.Event) {
	id := uuid.New()
	ch := make(chan coremodel.Event, 16)
	r.mu.Lock()
	r.subs[id] = ch
	r.mu.Unlock()
	if r.appm != nil {
		r.appm.EventSubscribers.Inc()
	}
	return id, ch
}

// Unsubscribe 取消订阅并关闭通道
func (r *Registry) Unsubscribe(id uuid.UUID) {
	r.mu.Lock()
	ch, ok := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()
	if ok {
		close(ch)
		if r.appm != nil {
			r.appm.EventSubscribers.Dec()
		}
	}
}

// publish 向全部订阅者广播一条事件
func (r *Registry) publish(ev coremodel.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
