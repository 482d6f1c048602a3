package usb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/mixerd/internal/coremodel"
	"github.com/taoyao-code/mixerd/internal/protocol/xlr"
)

func testOptions() Options {
	return Options{
		Timeout:      100 * time.Millisecond,
		PollInterval: time.Millisecond,
		MaxRetries:   3,
	}
}

func TestRequestRoundTrip(t *testing.T) {
	em := NewEmulator(coremodel.VariantFull, "S210101A")
	em.NotReadyPolls = 2
	tr := NewTransport(em, testOptions(), nil, nil)

	body, err := tr.Request(xlr.CmdGetHardwareInfo(xlr.HardwareInfoSerial), nil)
	require.NoError(t, err)

	serial, date, err := xlr.ParseSerialInfo(body)
	require.NoError(t, err)
	assert.Equal(t, "S210101A", serial)
	assert.Equal(t, "2024-01-01", date)
}

func TestSubmitWhileBusy(t *testing.T) {
	em := NewEmulator(coremodel.VariantFull, "S1")
	tr := NewTransport(em, testOptions(), nil, nil)

	p, err := tr.Submit(xlr.CmdGetButtonStates(), nil)
	require.NoError(t, err)

	_, err = tr.Submit(xlr.CmdGetMicLevel(), nil)
	assert.ErrorIs(t, err, ErrTransportBusy)

	// 清掉在途命令后可以继续
	_, err = tr.Await(p)
	require.NoError(t, err)
	_, err = tr.Submit(xlr.CmdGetMicLevel(), nil)
	assert.NoError(t, err)
}

func TestSequenceIncrements(t *testing.T) {
	em := NewEmulator(coremodel.VariantFull, "S1")
	tr := NewTransport(em, testOptions(), nil, nil)

	for i := 0; i < 3; i++ {
		_, err := tr.Request(xlr.CmdSetVolume(coremodel.ChannelMic), []byte{0x80})
		require.NoError(t, err)
	}

	frames := em.Received()
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, uint16(i+1), f.Seq)
	}
}

func TestRetryOnTimeoutThenSuccess(t *testing.T) {
	em := NewEmulator(coremodel.VariantFull, "S1")
	em.DropResponses = 2
	tr := NewTransport(em, testOptions(), nil, nil)

	_, err := tr.Request(xlr.CmdSetVolume(coremodel.ChannelMusic), []byte{0x40})
	require.NoError(t, err)
	// 两次被吞 + 一次成功
	assert.Len(t, em.ReceivedByClass(xlr.ClassSetVolume), 3)
}

func TestUnresponsiveAfterRetryBudget(t *testing.T) {
	em := NewEmulator(coremodel.VariantFull, "S1")
	em.DropResponses = 10
	tr := NewTransport(em, testOptions(), nil, nil)

	_, err := tr.Request(xlr.CmdSetVolume(coremodel.ChannelMusic), []byte{0x40})
	assert.ErrorIs(t, err, ErrDeviceUnresponsive)
	// 首次 + MaxRetries 次重试
	assert.Len(t, em.ReceivedByClass(xlr.ClassSetVolume), 4)
}

func TestSeqMismatchTriggersResync(t *testing.T) {
	em := NewEmulator(coremodel.VariantFull, "S1")
	em.CorruptSeqs = 1
	tr := NewTransport(em, testOptions(), nil, nil)

	_, err := tr.Request(xlr.CmdSetVolume(coremodel.ChannelChat), []byte{0x20})
	require.NoError(t, err)

	// 错位后必须先发序号复位命令再重试原命令
	assert.NotEmpty(t, em.ReceivedByClass(xlr.ClassResetSeq))
	assert.Len(t, em.ReceivedByClass(xlr.ClassSetVolume), 2)
}

func TestPollWithoutPending(t *testing.T) {
	em := NewEmulator(coremodel.VariantFull, "S1")
	tr := NewTransport(em, testOptions(), nil, nil)
	_, err := tr.Poll()
	assert.ErrorIs(t, err, ErrNoPending)
}
