// Package zerolog routes the module's capitan signals to a zerolog
// logger.
//
// Attach maps every signal the runtime emits to a leveled log event
// with the signal's fields carried over: failures log at error,
// degradations, drops, and timeouts at warn, lifecycle edges at
// info, and per-change chatter at debug. The underlying capitan
// hooks are registered once and live for the process lifetime;
// Detach swaps the destination back to a no-op logger rather than
// unhooking.
package zerolog

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/zoobzio/capitan"

	"github.com/zoobzio/bosun"
	"github.com/zoobzio/bosun/config"
	"github.com/zoobzio/bosun/custom"
	"github.com/zoobzio/bosun/hypr"
	"github.com/zoobzio/bosun/network"
)

var (
	current  atomic.Pointer[zerolog.Logger]
	hookOnce sync.Once
)

// Attach routes signals to logger until Detach or a later Attach.
func Attach(logger zerolog.Logger) {
	current.Store(&logger)
	hookOnce.Do(func() {
		hookRoot()
		hookConfig()
		hookHypr()
		hookCustom()
		hookNetwork()
	})
}

// Detach silences the sink.
func Detach() {
	current.Store(nil)
}

func active() *zerolog.Logger {
	if logger := current.Load(); logger != nil {
		return logger
	}
	nop := zerolog.Nop()
	return &nop
}

func hookRoot() {
	capitan.Hook(bosun.ServiceInitialized, func(_ context.Context, e *capitan.Event) {
		ev := active().Info()
		if v, ok := bosun.KeyService.From(e); ok {
			ev = ev.Str("service", v)
		}
		ev.Msg("service initialized")
	})
	capitan.Hook(bosun.ServiceErrored, func(_ context.Context, e *capitan.Event) {
		ev := active().Error()
		if v, ok := bosun.KeyService.From(e); ok {
			ev = ev.Str("service", v)
		}
		if v, ok := bosun.KeyError.From(e); ok {
			ev = ev.Str("error", v)
		}
		ev.Msg("service backend failed")
	})
	capitan.Hook(bosun.ServiceReconnecting, func(_ context.Context, e *capitan.Event) {
		ev := active().Warn()
		if v, ok := bosun.KeyService.From(e); ok {
			ev = ev.Str("service", v)
		}
		if v, ok := bosun.KeyBackoff.From(e); ok {
			ev = ev.Dur("backoff", v)
		}
		ev.Msg("service reconnecting")
	})
	capitan.Hook(bosun.ServiceListenerStopped, func(_ context.Context, e *capitan.Event) {
		ev := active().Info()
		if v, ok := bosun.KeyService.From(e); ok {
			ev = ev.Str("service", v)
		}
		ev.Msg("service listener stopped")
	})
	capitan.Hook(bosun.ServiceCommandFailed, func(_ context.Context, e *capitan.Event) {
		ev := active().Error()
		if v, ok := bosun.KeyService.From(e); ok {
			ev = ev.Str("service", v)
		}
		if v, ok := bosun.KeyError.From(e); ok {
			ev = ev.Str("error", v)
		}
		ev.Msg("service command failed")
	})
	capitan.Hook(bosun.ServiceDegraded, func(_ context.Context, e *capitan.Event) {
		ev := active().Warn()
		if v, ok := bosun.KeyService.From(e); ok {
			ev = ev.Str("service", v)
		}
		if v, ok := bosun.KeyError.From(e); ok {
			ev = ev.Str("error", v)
		}
		ev.Msg("service degraded")
	})

	capitan.Hook(bosun.BusEventDropped, func(_ context.Context, e *capitan.Event) {
		ev := active().Warn()
		if v, ok := bosun.KeyEnvelopeKind.From(e); ok {
			ev = ev.Str("envelope_kind", v)
		}
		if v, ok := bosun.KeyCapacity.From(e); ok {
			ev = ev.Int("capacity", v)
		}
		ev.Msg("bus envelope dropped")
	})
	capitan.Hook(bosun.BusEventCoalesced, func(_ context.Context, e *capitan.Event) {
		ev := active().Debug()
		if v, ok := bosun.KeyEnvelopeKind.From(e); ok {
			ev = ev.Str("envelope_kind", v)
		}
		ev.Msg("bus envelope coalesced")
	})
	capitan.Hook(bosun.BusDrained, func(_ context.Context, e *capitan.Event) {
		ev := active().Debug()
		if v, ok := bosun.KeyBatch.From(e); ok {
			ev = ev.Int("batch", v)
		}
		ev.Msg("bus drained")
	})
	capitan.Hook(bosun.BusClosed, func(_ context.Context, _ *capitan.Event) {
		active().Info().Msg("bus closed")
	})

	capitan.Hook(bosun.ModuleRegistered, func(_ context.Context, e *capitan.Event) {
		ev := active().Info()
		if v, ok := bosun.KeyModule.From(e); ok {
			ev = ev.Str("module", v)
		}
		if v, ok := bosun.KeyListenerID.From(e); ok {
			ev = ev.Str("listener_id", v)
		}
		ev.Msg("module listener registered")
	})
	capitan.Hook(bosun.ModuleAborted, func(_ context.Context, e *capitan.Event) {
		ev := active().Info()
		if v, ok := bosun.KeyModule.From(e); ok {
			ev = ev.Str("module", v)
		}
		if v, ok := bosun.KeyListenerID.From(e); ok {
			ev = ev.Str("listener_id", v)
		}
		ev.Msg("module listener aborted")
	})
}

func hookConfig() {
	capitan.Hook(config.ManagerStarted, func(_ context.Context, e *capitan.Event) {
		ev := active().Info()
		if v, ok := config.KeyDebounce.From(e); ok {
			ev = ev.Dur("debounce", v)
		}
		if v, ok := config.KeyWatcherType.From(e); ok {
			ev = ev.Str("watcher_type", v)
		}
		ev.Msg("config watching started")
	})
	capitan.Hook(config.ManagerStopped, func(_ context.Context, e *capitan.Event) {
		ev := active().Info()
		if v, ok := config.KeyState.From(e); ok {
			ev = ev.Str("state", v)
		}
		ev.Msg("config watching stopped")
	})
	capitan.Hook(config.ManagerStateChanged, func(_ context.Context, e *capitan.Event) {
		ev := active().Debug()
		if v, ok := config.KeyOldState.From(e); ok {
			ev = ev.Str("old_state", v)
		}
		if v, ok := config.KeyNewState.From(e); ok {
			ev = ev.Str("new_state", v)
		}
		ev.Msg("config manager state changed")
	})
	capitan.Hook(config.ChangeReceived, func(_ context.Context, _ *capitan.Event) {
		active().Debug().Msg("config change received")
	})
	capitan.Hook(config.ReadFailed, func(_ context.Context, e *capitan.Event) {
		ev := active().Error()
		if v, ok := config.KeyPath.From(e); ok {
			ev = ev.Str("path", v)
		}
		if v, ok := config.KeyError.From(e); ok {
			ev = ev.Str("error", v)
		}
		ev.Msg("config read failed")
	})
	capitan.Hook(config.DecodeFailed, func(_ context.Context, e *capitan.Event) {
		ev := active().Error()
		if v, ok := config.KeyError.From(e); ok {
			ev = ev.Str("error", v)
		}
		ev.Msg("config decode failed")
	})
	capitan.Hook(config.ValidationFailed, func(_ context.Context, e *capitan.Event) {
		ev := active().Error()
		if v, ok := config.KeyError.From(e); ok {
			ev = ev.Str("error", v)
		}
		ev.Msg("config validation failed")
	})
	capitan.Hook(config.ApplyFailed, func(_ context.Context, e *capitan.Event) {
		ev := active().Error()
		if v, ok := config.KeyError.From(e); ok {
			ev = ev.Str("error", v)
		}
		ev.Msg("config apply failed")
	})
	capitan.Hook(config.Applied, func(_ context.Context, e *capitan.Event) {
		ev := active().Info()
		if v, ok := config.KeyAffected.From(e); ok {
			ev = ev.Int("affected_modules", v)
		}
		ev.Msg("config applied")
	})
	capitan.Hook(config.FileRemoved, func(_ context.Context, e *capitan.Event) {
		ev := active().Warn()
		if v, ok := config.KeyPath.From(e); ok {
			ev = ev.Str("path", v)
		}
		ev.Msg("config file removed")
	})
	capitan.Hook(config.WatchReset, func(_ context.Context, e *capitan.Event) {
		ev := active().Warn()
		if v, ok := config.KeyPath.From(e); ok {
			ev = ev.Str("path", v)
		}
		if v, ok := config.KeyError.From(e); ok {
			ev = ev.Str("error", v)
		}
		ev.Msg("config watch reset")
	})
}

func hookHypr() {
	capitan.Hook(hypr.RequestAttemptFailed, func(_ context.Context, e *capitan.Event) {
		ev := active().Warn()
		if v, ok := hypr.KeyOperation.From(e); ok {
			ev = ev.Str("operation", v)
		}
		if v, ok := hypr.KeyAttempt.From(e); ok {
			ev = ev.Int("attempt", v)
		}
		if v, ok := hypr.KeyError.From(e); ok {
			ev = ev.Str("error", v)
		}
		ev.Msg("compositor request attempt failed")
	})
	capitan.Hook(hypr.ListenerStopped, func(_ context.Context, e *capitan.Event) {
		ev := active().Warn()
		if v, ok := hypr.KeyOperation.From(e); ok {
			ev = ev.Str("operation", v)
		}
		ev.Msg("compositor event loop stopped")
	})
	capitan.Hook(hypr.ListenerFailed, func(_ context.Context, e *capitan.Event) {
		ev := active().Error()
		if v, ok := hypr.KeyOperation.From(e); ok {
			ev = ev.Str("operation", v)
		}
		if v, ok := hypr.KeyError.From(e); ok {
			ev = ev.Str("error", v)
		}
		ev.Msg("compositor event loop failed")
	})
	capitan.Hook(hypr.ListenerTimedOut, func(_ context.Context, e *capitan.Event) {
		ev := active().Warn()
		if v, ok := hypr.KeyOperation.From(e); ok {
			ev = ev.Str("operation", v)
		}
		if v, ok := hypr.KeyTimeout.From(e); ok {
			ev = ev.Dur("timeout", v)
		}
		ev.Msg("compositor event loop timed out")
	})
}

func hookCustom() {
	capitan.Hook(custom.ListenerFailed, func(_ context.Context, e *capitan.Event) {
		ev := active().Error()
		if v, ok := bosun.KeyModule.From(e); ok {
			ev = ev.Str("module", v)
		}
		if v, ok := bosun.KeyError.From(e); ok {
			ev = ev.Str("error", v)
		}
		ev.Msg("custom module listener failed")
	})
	capitan.Hook(custom.CommandFailed, func(_ context.Context, e *capitan.Event) {
		ev := active().Error()
		if v, ok := bosun.KeyModule.From(e); ok {
			ev = ev.Str("module", v)
		}
		if v, ok := bosun.KeyError.From(e); ok {
			ev = ev.Str("error", v)
		}
		ev.Msg("custom module command failed")
	})
}

func hookNetwork() {
	capitan.Hook(network.BackendSelected, func(_ context.Context, e *capitan.Event) {
		ev := active().Info()
		if v, ok := bosun.KeyService.From(e); ok {
			ev = ev.Str("service", v)
		}
		if v, ok := network.KeyBackend.From(e); ok {
			ev = ev.Str("backend", v)
		}
		ev.Msg("network backend selected")
	})
}
