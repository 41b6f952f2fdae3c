// Command quietd is the host application binary: it wires InputEngine,
// Denoiser, and OutputRouter into the capture -> denoise -> route pipeline
// spec.md §2 describes, and republishes lifecycle/level/error events on
// the shared EventBus for the (out-of-scope, §1) UI, tray, and logging
// collaborators to consume. Structured the way the teacher's
// cmd/loopback and cmd/noisesuppress wire recorder/player/noise-suppressor
// together, generalized from a one-shot pipe to the full five-component
// system.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"

	"github.com/quietaudio/quiet/internal/backend"
	_ "github.com/quietaudio/quiet/internal/backend/portaudio"
	_ "github.com/quietaudio/quiet/internal/backend/pulseaudio"
	"github.com/quietaudio/quiet/internal/config"
	"github.com/quietaudio/quiet/pkg/audioframe"
	"github.com/quietaudio/quiet/pkg/denoiser"
	"github.com/quietaudio/quiet/pkg/events"
	"github.com/quietaudio/quiet/pkg/inputengine"
	"github.com/quietaudio/quiet/pkg/outputrouter"
)

// eventQueueCapacity bounds the EventBus's queue (spec.md §4.2). 256 is
// generous headroom over the ~1 event/50ms level-meter cadence plus
// occasional lifecycle/error bursts.
const eventQueueCapacity = 256

func main() {
	minimized := pflag.Bool("minimized", false, "start hidden")
	debug := pflag.Bool("debug", false, "raise log level to debug")
	configPath := pflag.String("config", config.DefaultPath(), "path to config.json")
	logLevel := logger.LevelInfo
	pflag.Var(&logLevel, "log-level", "log level")
	pflag.Parse()
	_ = minimized // consumed only by the (out-of-scope) UI layer

	if *debug {
		logLevel = logger.LevelDebug
	}

	l := logrus.Default().WithLevel(logLevel)
	ctx, cancel := context.WithCancel(logger.CtxWithLogger(context.Background(), l))
	logger.Default = func() logger.Logger { return l }
	defer belt.Flush(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		logger.Errorf(ctx, "quietd: %v", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	bus := events.New(eventQueueCapacity)
	bus.Start(ctx)
	defer bus.Stop()
	logListeners(ctx, bus)

	bk, err := backend.NewAuto(ctx)
	if err != nil {
		return err
	}

	input := inputengine.New(bk, bus)
	if err := input.Init(ctx); err != nil {
		return err
	}
	defer input.Shutdown(ctx)

	inFmt := cfg.InputFormat()
	if err := input.SetFormat(ctx, inFmt.SampleRate, inFmt.BufferSize); err != nil {
		return err
	}
	selected := false
	if cfg.Audio.InputDeviceID != "" {
		if err := input.Select(ctx, cfg.Audio.InputDeviceID); err != nil {
			logger.Warnf(ctx, "quietd: preferred input device unavailable: %v", err)
		} else {
			selected = true
		}
	}
	if !selected {
		if err := autoSelectInputIfNeeded(ctx, input); err != nil {
			return err
		}
	}

	dn := denoiser.New(bus)
	if err := dn.Init(ctx, inFmt.SampleRate); err != nil {
		return err
	}
	defer dn.Shutdown()
	dn.SetConfig(cfg.DenoiserConfig())

	router := outputrouter.New(bk, bus)
	outFmt := cfg.OutputFormat()
	if err := router.SetFormat(ctx, outFmt.SampleRate, outFmt.BufferSize, outFmt.Channels); err != nil {
		return err
	}
	if err := router.Init(ctx); err != nil {
		return err
	}
	defer router.Shutdown(ctx)
	startRoutingWhenReady(ctx, router)

	input.SetCallback(func(frame *audioframe.Frame) {
		if err := dn.Process(frame); err != nil {
			logger.Debugf(ctx, "quietd: denoise: %v", err)
			return
		}
		if router.State() != outputrouter.Routing {
			return
		}
		if err := router.Route(ctx, frame); err != nil {
			logger.Debugf(ctx, "quietd: route: %v", err)
		}
	})

	if err := input.Start(ctx); err != nil {
		return err
	}
	defer input.Stop(ctx)

	logger.Infof(ctx, "quietd: running")
	<-ctx.Done()
	logger.Infof(ctx, "quietd: shutting down")
	return nil
}

// autoSelectInputIfNeeded picks the first available capture device when
// the config file names none or the preferred one is gone.
func autoSelectInputIfNeeded(ctx context.Context, input *inputengine.Engine) error {
	inputs, err := input.ListInputs(ctx)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return nil
	}
	return input.Select(ctx, inputs[0].ID)
}

// logListeners subscribes a single catch-all listener that logs every
// event at debug level, standing in for the UI/tray/logging collaborators
// spec.md §1 places out of core scope.
func logListeners(ctx context.Context, bus *events.Bus) {
	bus.SubscribeAll(func(ctx context.Context, ev events.Event) {
		logger.Debugf(ctx, "event: %s %+v", ev.Kind, ev.Payload)
	})
}

// startRoutingWhenReady polls Router until the hot-plug loop has opened a
// virtual-output device (state Idle) and starts routing, checking every
// 200ms until routing starts or ctx is done.
func startRoutingWhenReady(ctx context.Context, router *outputrouter.Router) {
	observability.Go(ctx, func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			if router.State() == outputrouter.Idle {
				if err := router.StartRouting(); err == nil {
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	})
}
