package inputengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quietaudio/quiet/internal/backend/mock"
	"github.com/quietaudio/quiet/internal/device"
	"github.com/quietaudio/quiet/pkg/audioframe"
)

func testDevice(id string) device.Descriptor {
	return device.Descriptor{ID: id, Name: id, Kind: device.PhysicalInput, MaxChannels: 1, Connected: true}
}

func TestSelectUnknownDeviceFails(t *testing.T) {
	bk := mock.New(testDevice("mic1"))
	e := New(bk, nil)
	err := e.Select(context.Background(), "nope")
	require.Error(t, err)
}

func TestSelectAndStartDeliversFrames(t *testing.T) {
	bk := mock.New(testDevice("mic1"))
	e := New(bk, nil)
	ctx := context.Background()
	require.NoError(t, e.Select(ctx, "mic1"))
	require.NoError(t, e.SetFormat(ctx, 48000, 64))

	var (
		mu    sync.Mutex
		count int
	)
	e.SetCallback(func(frame *audioframe.Frame) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.NoError(t, e.Start(ctx))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count > 3
	}, time.Second, time.Millisecond)
	require.NoError(t, e.Stop(ctx))
}

func TestSetFormatRejectsInvalidValues(t *testing.T) {
	bk := mock.New(testDevice("mic1"))
	e := New(bk, nil)
	ctx := context.Background()
	require.Error(t, e.SetFormat(ctx, 4000, 64))
	require.Error(t, e.SetFormat(ctx, 48000, 100))
}

func TestMuteZeroesDeliveredFrame(t *testing.T) {
	bk := mock.New(testDevice("mic1"))
	e := New(bk, nil)
	ctx := context.Background()
	require.NoError(t, e.Select(ctx, "mic1"))
	require.NoError(t, e.SetFormat(ctx, 48000, 64))
	e.SetMuted(true)

	seen := make(chan *audioframe.Frame, 1)
	e.SetCallback(func(frame *audioframe.Frame) {
		select {
		case seen <- frame.Copy():
		default:
		}
	})
	require.NoError(t, e.Start(ctx))
	defer e.Stop(ctx)

	frame := <-seen
	for i := 0; i < frame.Samples(); i++ {
		require.Equal(t, float32(0), frame.Channel(0)[i])
	}
}
