package backend

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/quietaudio/quiet/internal/device"
)

// Factory constructs a Backend. Construction is separated from Ping so a
// Backend that fails to even initialize (missing shared library, no
// PulseAudio socket) never enters the candidate pool silently.
type Factory interface {
	NewBackend() (Backend, error)
}

type factoryWithPriority struct {
	priority int
	Factory
}

var (
	registryMu sync.Mutex
	registry   = map[reflect.Type]factoryWithPriority{}
)

// Register adds a Factory to the global registry at the given priority;
// higher priorities are tried first by NewAuto. Mirrors
// pkg/audio/registry.RegisterRecorderFactory, generalized to one registry
// shared by capture and output backends (each Factory self-identifies via
// the Backend it constructs).
func Register(priority int, f Factory) {
	t := reflect.ValueOf(f).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[t]; ok {
		panic(fmt.Errorf("backend: factory of type %v already registered", t))
	}
	registry[t] = factoryWithPriority{priority: priority, Factory: f}
}

// Factories returns every registered Factory, highest priority first.
func Factories() []Factory {
	registryMu.Lock()
	defer registryMu.Unlock()
	ordered := make([]factoryWithPriority, 0, len(registry))
	for _, f := range registry {
		ordered = append(ordered, f)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].priority > ordered[j].priority })
	factories := make([]Factory, len(ordered))
	for i, f := range ordered {
		factories[i] = f.Factory
	}
	return factories
}

var (
	lastSuccessfulMu sync.Mutex
	lastSuccessful   Factory
)

// NewAuto constructs and pings every registered Factory in priority order,
// returning the first Backend whose Ping succeeds. It remembers the last
// successful Factory and tries it first next time, exactly like
// pkg/audio.NewRecorderAuto/NewPlayerAuto.
func NewAuto(ctx context.Context) (Backend, error) {
	lastSuccessfulMu.Lock()
	cached := lastSuccessful
	lastSuccessfulMu.Unlock()
	if cached != nil {
		if b, err := tryFactory(ctx, cached); err == nil {
			return b, nil
		}
	}

	var mErr *multierror.Error
	for _, f := range Factories() {
		b, err := tryFactory(ctx, f)
		if err != nil {
			mErr = multierror.Append(mErr, err)
			continue
		}
		lastSuccessfulMu.Lock()
		lastSuccessful = f
		lastSuccessfulMu.Unlock()
		return b, nil
	}
	if mErr == nil {
		return nil, fmt.Errorf("backend: no backend is registered")
	}
	return nil, fmt.Errorf("backend: no backend is available: %w", mErr)
}

// ListDevicesAcross enumerates devices across every constructible,
// pingable registered Backend, aggregating per-backend probe failures
// rather than failing outright — a backend with no hardware attached
// should not hide devices a different backend can see.
func ListDevicesAcross(ctx context.Context) ([]device.Descriptor, error) {
	var (
		all  []device.Descriptor
		mErr *multierror.Error
	)
	for _, f := range Factories() {
		b, err := tryFactory(ctx, f)
		if err != nil {
			mErr = multierror.Append(mErr, err)
			continue
		}
		devices, err := b.ListDevices(ctx)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		all = append(all, devices...)
	}
	if len(all) == 0 && mErr != nil {
		return nil, mErr
	}
	return all, nil
}

func tryFactory(ctx context.Context, f Factory) (Backend, error) {
	b, err := f.NewBackend()
	if err != nil {
		return nil, fmt.Errorf("unable to construct %T: %w", f, err)
	}
	logger.Debugf(ctx, "backend: constructed %s, pinging", b.Name())
	if err := b.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping %s: %w", b.Name(), err)
	}
	return b, nil
}
