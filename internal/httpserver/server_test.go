package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/mixerd/internal/config"
	"github.com/taoyao-code/mixerd/internal/coremodel"
	"github.com/taoyao-code/mixerd/internal/device"
	"github.com/taoyao-code/mixerd/internal/devstate"
	"github.com/taoyao-code/mixerd/internal/profile"
	"github.com/taoyao-code/mixerd/internal/usb"
)

func startServer(t *testing.T) (*httptest.Server, *usb.EmulatedEnumerator) {
	t.Helper()
	enum := usb.NewEmulatedEnumerator()
	reg := device.NewRegistry(enum, device.RegistryOptions{
		ScanInterval: 10 * time.Millisecond,
		Worker: device.Options{
			HoldThreshold: 80 * time.Millisecond,
			PollInterval:  5 * time.Millisecond,
		},
		Transport: usb.Options{
			Timeout:      200 * time.Millisecond,
			PollInterval: time.Millisecond,
			MaxRetries:   2,
		},
	}, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = reg.Run(ctx) }()

	srv := New(cfgpkg.HTTPConfig{Addr: ":0"}, reg, "", nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, enum
}

func attachReady(t *testing.T, ts *httptest.Server, enum *usb.EmulatedEnumerator, variant coremodel.Variant, serial string) *usb.Emulator {
	t.Helper()
	em := usb.NewEmulator(variant, serial)
	enum.Attach(em)
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/api/devices/" + serial)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond, "device never became ready")
	return em
}

func getState(t *testing.T, ts *httptest.Server, serial string) devstate.Snapshot {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/devices/" + serial)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Phase string            `json:"phase"`
		State devstate.Snapshot `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ready", body.Phase)
	return body.State
}

func patchDevice(t *testing.T, ts *httptest.Server, serial, payload string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPatch,
		ts.URL+"/api/devices/"+serial, bytes.NewReader([]byte(payload)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthz(t *testing.T) {
	ts, _ := startServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListDevices(t *testing.T) {
	ts, enum := startServer(t)

	resp, err := http.Get(ts.URL + "/api/devices")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var empty struct {
		Devices []coremodel.HardwareInfo `json:"devices"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&empty))
	assert.Empty(t, empty.Devices)

	attachReady(t, ts, enum, coremodel.VariantFull, "HTTP1")

	resp2, err := http.Get(ts.URL + "/api/devices")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var listed struct {
		Devices []coremodel.HardwareInfo `json:"devices"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&listed))
	require.Len(t, listed.Devices, 1)
	assert.Equal(t, coremodel.DeviceSerial("HTTP1"), listed.Devices[0].Serial)
	assert.Equal(t, "1.2.3.100", listed.Devices[0].Firmware.String())
}

func TestGetDeviceNotFound(t *testing.T) {
	ts, _ := startServer(t)
	resp, err := http.Get(ts.URL + "/api/devices/NOPE")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPatchVolumeAndMute(t *testing.T) {
	ts, enum := startServer(t)
	attachReady(t, ts, enum, coremodel.VariantFull, "HTTP1")

	resp := patchDevice(t, ts, "HTTP1", `{"volumes":{"music":100}}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	state := getState(t, ts, "HTTP1")
	assert.Equal(t, uint8(100), state.Volumes[coremodel.ChannelMusic])

	resp2 := patchDevice(t, ts, "HTTP1",
		`{"mutes":{"music":{"muted":true,"targets":["headphones"]}}}`)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	state = getState(t, ts, "HTTP1")
	mute := state.Mutes[coremodel.ChannelMusic]
	assert.Equal(t, coremodel.MuteToTargets, mute.Mode)
	assert.True(t, mute.Targets.Has(coremodel.OutputHeadphones))

	// 解除静音后覆盖清空、原边恢复
	resp3 := patchDevice(t, ts, "HTTP1", `{"mutes":{"music":{"muted":false}}}`)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusOK, resp3.StatusCode)

	state = getState(t, ts, "HTTP1")
	assert.True(t, state.Mutes[coremodel.ChannelMusic].Unmuted())
	assert.Empty(t, state.Overlays)
}

func TestPatchFaderSwap(t *testing.T) {
	ts, enum := startServer(t)
	attachReady(t, ts, enum, coremodel.VariantFull, "HTTP1")

	before := getState(t, ts, "HTTP1")
	chA := before.Faders[coremodel.FaderA]
	chC := before.Faders[coremodel.FaderC]

	resp := patchDevice(t, ts, "HTTP1", `{"faders":{"A":"`+chC.String()+`"}}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	after := getState(t, ts, "HTTP1")
	assert.Equal(t, chC, after.Faders[coremodel.FaderA])
	assert.Equal(t, chA, after.Faders[coremodel.FaderC])
}

func TestPatchRejectsUnknownNames(t *testing.T) {
	ts, enum := startServer(t)
	attachReady(t, ts, enum, coremodel.VariantFull, "HTTP1")

	for _, payload := range []string{
		`{"volumes":{"bogus":10}}`,
		`{"mutes":{"music":{"muted":true,"targets":["bogus"]}}}`,
		`{"faders":{"Z":"music"}}`,
		`{"effects":{"bogus_key":1}}`,
		`{"routing":[{"input":"bogus","output":"headphones","connected":false}]}`,
	} {
		resp := patchDevice(t, ts, "HTTP1", payload)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, payload)
		resp.Body.Close()
	}
}

func TestPatchMiniRejectsColours(t *testing.T) {
	ts, enum := startServer(t)
	attachReady(t, ts, enum, coremodel.VariantMini, "MINI1")

	resp := patchDevice(t, ts, "MINI1", `{"colours":{"0":{}}}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPatchCoughTogglesOverlay(t *testing.T) {
	ts, enum := startServer(t)
	attachReady(t, ts, enum, coremodel.VariantFull, "HTTP1")

	resp := patchDevice(t, ts, "HTTP1", `{"cough":true}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	state := getState(t, ts, "HTTP1")
	assert.False(t, state.Cough.Unmuted())

	resp2 := patchDevice(t, ts, "HTTP1", `{"cough":false}`)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	state = getState(t, ts, "HTTP1")
	assert.True(t, state.Cough.Unmuted())
}

func TestExportProfile(t *testing.T) {
	ts, enum := startServer(t)
	attachReady(t, ts, enum, coremodel.VariantFull, "HTTP1")

	resp := patchDevice(t, ts, "HTTP1",
		`{"mutes":{"music":{"muted":true,"targets":["headphones"]}}}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/api/devices/HTTP1/profile")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var body struct {
		Profile profile.Profile `json:"profile"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body))
	assert.True(t, body.Profile.Muted[coremodel.ChannelMusic])
	assert.True(t, body.Profile.MuteTargets[coremodel.ChannelMusic].Has(coremodel.OutputHeadphones))
	assert.Equal(t, coremodel.ChannelMic, body.Profile.Faders[coremodel.FaderA])
	require.NoError(t, body.Profile.Validate())

	resp3, err := http.Get(ts.URL + "/api/devices/NOPE/profile")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
}

func TestEventStreamDeliversAttach(t *testing.T) {
	ts, enum := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	enum.Attach(usb.NewEmulator(coremodel.VariantFull, "SSE1"))

	scanner := bufio.NewScanner(resp.Body)
	var sawAttach bool
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") && strings.Contains(line, "device_attached") {
			sawAttach = true
			break
		}
	}
	assert.True(t, sawAttach, "attach event never streamed")
}
