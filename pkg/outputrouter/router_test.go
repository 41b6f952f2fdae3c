package outputrouter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quietaudio/quiet/internal/backend/mock"
	"github.com/quietaudio/quiet/internal/device"
	"github.com/quietaudio/quiet/pkg/audioframe"
)

func vbCable(id string) device.Descriptor {
	return device.Descriptor{ID: id, Name: "VB-Cable", Kind: device.VirtualOutput, Sub: device.SubkindVBCable, MaxChannels: 2, Connected: true}
}

func TestSelectStartRouteHappyPath(t *testing.T) {
	bk := mock.New(vbCable("vb1"))
	r := New(bk, nil)
	ctx := context.Background()

	require.NoError(t, r.Select(ctx, "vb1"))
	require.Equal(t, Idle, r.State())
	require.NoError(t, r.StartRouting())
	require.Equal(t, Routing, r.State())

	frame := audioframe.New(2, 480, 48000)
	require.NoError(t, r.Route(ctx, frame))

	stats := r.Stats()
	require.Equal(t, uint64(1), stats.BuffersRouted)
	require.Equal(t, uint64(0), stats.DroppedBuffers)
}

func TestRouteBeforeRoutingIsDropped(t *testing.T) {
	bk := mock.New(vbCable("vb1"))
	r := New(bk, nil)
	ctx := context.Background()
	require.NoError(t, r.Select(ctx, "vb1"))

	frame := audioframe.New(2, 480, 48000)
	err := r.Route(ctx, frame)
	require.Error(t, err)
	require.Equal(t, uint64(1), r.Stats().DroppedBuffers)
}

func TestSelectUnknownDeviceFails(t *testing.T) {
	bk := mock.New(vbCable("vb1"))
	r := New(bk, nil)
	err := r.Select(context.Background(), "nope")
	require.Error(t, err)
}

func TestWriteFailureTriggersReconnectAndRecovers(t *testing.T) {
	bk := mock.New(vbCable("vb1"))
	r := New(bk, nil)
	ctx := context.Background()

	require.NoError(t, r.Select(ctx, "vb1"))
	require.NoError(t, r.StartRouting())

	frame := audioframe.New(2, 480, 48000)
	require.NoError(t, r.Route(ctx, frame))

	// Inject a write failure into the exact stream Router is holding
	// (spec.md §8 scenario 7: mock output fails after N writes).
	bk.LastOutputStream("vb1").FailAfter(1)

	require.Error(t, r.Route(ctx, frame))
	require.Eventually(t, func() bool {
		return r.State() == Routing
	}, 3*time.Second, 10*time.Millisecond)
	require.GreaterOrEqual(t, r.Stats().DroppedBuffers, uint64(1))
}

func TestHotUnplugWhileIdleFallsBackToScanning(t *testing.T) {
	bk := mock.New(vbCable("vb1"))
	r := New(bk, nil)
	ctx := context.Background()
	require.NoError(t, r.Init(ctx))
	defer r.Shutdown(ctx)

	require.Eventually(t, func() bool { return r.State() == Idle }, time.Second, 5*time.Millisecond)

	bk.SetDevices()
	require.Eventually(t, func() bool { return r.State() == Scanning }, 3*time.Second, 10*time.Millisecond)
}
