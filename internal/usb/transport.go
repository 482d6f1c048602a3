package usb

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/mixerd/internal/metrics"
	"github.com/taoyao-code/mixerd/internal/protocol/xlr"
)

// Options 传输层参数
type Options struct {
	// Timeout 单条命令从提交到响应的期限
	Timeout time.Duration
	// PollInterval 响应轮询间隔
	PollInterval time.Duration
	// MaxRetries 瞬时故障的有界重试次数
	MaxRetries int
}

// DefaultOptions 返回默认传输参数
func DefaultOptions() Options {
	return Options{
		Timeout:      time.Second,
		PollInterval: 5 * time.Millisecond,
		MaxRetries:   3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	return o
}

// Pending 一条在途命令：序号关联、发出时间与期望响应的命令字
type Pending struct {
	Seq    uint16
	Cmd    xlr.Command
	SentAt time.Time
}

// Transport 单设备命令传输。同一时刻仅允许一条在途命令，
// 调用方（设备工作者）负责串行化。
type Transport struct {
	mu      sync.Mutex
	backend Backend
	opts    Options
	log     *zap.Logger
	appm    *metrics.AppMetrics

	seq     uint16
	pending *Pending
}

// NewTransport 创建传输层。appm 可为 nil。
func NewTransport(backend Backend, opts Options, log *zap.Logger, appm *metrics.AppMetrics) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{backend: backend, opts: opts.withDefaults(), log: log, appm: appm}
}

// Submit 提交一条命令帧。已有在途命令时返回 ErrTransportBusy。
func (t *Transport) Submit(cmd xlr.Command, body []byte) (*Pending, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		return nil, fmt.Errorf("%w: %s outstanding", ErrTransportBusy, t.pending.Cmd)
	}
	p, err := t.submitLocked(cmd, body)
	if err != nil {
		return nil, err
	}
	t.pending = p
	return p, nil
}

// submitLocked 分配序号并写出帧。序号回绕前先发序号复位命令。
func (t *Transport) submitLocked(cmd xlr.Command, body []byte) (*Pending, error) {
	if cmd.Class == xlr.ClassResetSeq {
		t.seq = 0
	} else {
		if t.seq == 0xFFFF {
			if err := t.resetSeqLocked(); err != nil {
				return nil, err
			}
		}
		t.seq++
	}

	frame, err := xlr.Encode(cmd, t.seq, body)
	if err != nil {
		return nil, err
	}
	if err := t.backend.WriteVendor(reqSubmitCommand, 0, 0, frame); err != nil {
		return nil, fmt.Errorf("usb: submit %s: %w", cmd, err)
	}
	return &Pending{Seq: t.seq, Cmd: cmd, SentAt: time.Now()}, nil
}

// Poll 尝试读取一次响应。响应未就绪返回 (nil, nil)；
// 序号不匹配的响应丢弃并继续等待。
func (t *Transport) Poll() (*xlr.Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return nil, ErrNoPending
	}

	raw, err := t.backend.ReadVendor(reqReadResponse, 0, 0, responseBufferLen)
	if errors.Is(err, ErrResponseNotReady) {
		if time.Since(t.pending.SentAt) > t.opts.Timeout {
			t.pending = nil
			return nil, ErrTransferTimeout
		}
		return nil, nil
	}
	if err != nil {
		t.pending = nil
		return nil, fmt.Errorf("usb: read response: %w", err)
	}

	frame, err := xlr.Decode(raw)
	if err != nil {
		// 结构非法的帧记录后丢弃，该次操作按超时处理
		t.log.Warn("dropping malformed response frame", zap.Error(err))
		t.pending = nil
		return nil, ErrTransferTimeout
	}
	if frame.Seq != t.pending.Seq {
		t.log.Debug("response seq mismatch",
			zap.Uint16("want", t.pending.Seq), zap.Uint16("got", frame.Seq))
		t.pending = nil
		return nil, errSeqMismatch
	}

	t.pending = nil
	return &frame, nil
}

var errSeqMismatch = errors.New("usb: response sequence mismatch")

// Await 阻塞等待在途命令的响应，直至成功、序号错位或超时
func (t *Transport) Await(p *Pending) ([]byte, error) {
	deadline := p.SentAt.Add(t.opts.Timeout)
	for {
		frame, err := t.Poll()
		if err != nil {
			return nil, err
		}
		if frame != nil {
			return frame.Body, nil
		}
		if time.Now().After(deadline) {
			t.mu.Lock()
			t.pending = nil
			t.mu.Unlock()
			return nil, ErrTransferTimeout
		}
		time.Sleep(t.opts.PollInterval)
	}
}

// Request 提交命令并等待响应。瞬时故障（超时、短读）按有界次数重试，
// 序号错位触发一次序号复位再重试；额度耗尽返回 ErrDeviceUnresponsive。
//
// 超时后的重发走完整的重新提交，占用新的序号；只有响应未就绪的
// 等待轮询（Await 内部）复用原序号。固件按序号去重，旧序号重发会被
// 当作已处理命令吞掉，因此超时恢复必须换号。
func (t *Transport) Request(cmd xlr.Command, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= t.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			t.appm.IncCommand(cmd.Class.String(), "retry")
			t.log.Debug("retrying command",
				zap.Stringer("cmd", cmd), zap.Int("attempt", attempt))
		}

		p, err := t.Submit(cmd, body)
		if err != nil {
			if errors.Is(err, ErrTransportBusy) {
				// 串行化契约违规不属于瞬时故障
				return nil, err
			}
			lastErr = err
			continue
		}

		resp, err := t.Await(p)
		if err == nil {
			t.appm.IncCommand(cmd.Class.String(), "ok")
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, errSeqMismatch) {
			if rerr := t.resetSeq(); rerr != nil {
				lastErr = rerr
			}
		}
	}
	t.appm.IncCommand(cmd.Class.String(), "error")
	return nil, fmt.Errorf("%w: %s after %d attempts: %v",
		ErrDeviceUnresponsive, cmd, t.opts.MaxRetries+1, lastErr)
}

// resetSeq 发出序号复位命令并等待确认
func (t *Transport) resetSeq() error {
	t.mu.Lock()
	p, err := t.submitLocked(xlr.CmdResetSeq(), nil)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.pending = p
	t.mu.Unlock()

	_, err = t.Await(p)
	return err
}

// resetSeqLocked 序号回绕时的内联复位：写出复位帧并就地丢弃其响应
func (t *Transport) resetSeqLocked() error {
	t.seq = 0
	frame, err := xlr.Encode(xlr.CmdResetSeq(), 0, nil)
	if err != nil {
		return err
	}
	if err := t.backend.WriteVendor(reqSubmitCommand, 0, 0, frame); err != nil {
		return err
	}
	deadline := time.Now().Add(t.opts.Timeout)
	for time.Now().Before(deadline) {
		_, err := t.backend.ReadVendor(reqReadResponse, 0, 0, responseBufferLen)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrResponseNotReady) {
			return err
		}
		time.Sleep(t.opts.PollInterval)
	}
	return ErrTransferTimeout
}

// ResetState 空写复位命令管道（接入初始化时使用）
func (t *Transport) ResetState() error {
	return t.backend.WriteVendor(reqResetState, 0, 0, nil)
}

// Close 关闭底层后端
func (t *Transport) Close() error {
	return t.backend.Close()
}
