/*
Package bosun provides the subsystem core for a desktop shell: reactive
service lifecycles over unreliable backends, a bounded event bus feeding
a single presentation consumer, and registration plumbing that lets each
module own exactly one background listener at a time.

bosun is designed to be embedded within a shell or status bar process,
not run as a standalone service. Every external subsystem (audio server,
network manager, Bluetooth, backlight, compositor IPC, media players) is
wrapped the same way: a backend adapter exposes "spawn a connection" and
"send a command", and the lifecycle engine turns that into a uniform
event stream the presentation layer can consume.

# Lifecycle

Every service follows the same three-phase loop:

	engine := bosun.NewEngine("audio", backend)
	go engine.Listen(ctx, publisher)

The engine attempts the backend connection, publishes an Init event
carrying the fully initialized service handle, then relays backend
notifications as Update events. Any failure publishes an Error event and
schedules a reconnect after a fixed backoff. The error phase is never
terminal: subsystems that appear late (a backlight device after boot, a
compositor restart) are picked up on the next attempt.

# Event Bus

Producers never block the presentation thread. Publishing is
best-effort: a full queue drops the envelope and reports it, and
consecutive redraw or popup-toggle hints are coalesced. The consumer
drains the queue in one batch per tick:

	bus := bosun.NewBus().Capacity(256)
	ticker := bosun.NewTicker()
	go ticker.Run(ctx, func(ctx context.Context) bool {
	    batch, err := bus.Drain(ctx)
	    if err != nil {
	        return true // force fast cadence on bus failure
	    }
	    deliver(batch)
	    return len(batch) > 0
	})

The tick cadence is adaptive: fast while events flow, slower after a few
consecutive empty drains.

# Module Registration

Modules self-register background listeners through a shared context.
Re-registering a module aborts the previous listener before the new one
starts, so at most one listener per module is ever live:

	mctx := bosun.NewModuleContext(ctx, bus)
	handle, err := mctx.Register("workspaces", func(ctx context.Context) {
	    listenForWorkspaces(ctx, bosun.NewSender[WorkspaceMsg](mctx, "workspaces"))
	})

# Observability

bosun emits capitan signals at every lifecycle point. Hook them for
logging or metrics:

	capitan.Hook(bosun.ServiceErrored, func(_ context.Context, e *capitan.Event) {
	    name, _ := bosun.KeyService.From(e)
	    log.Printf("service %s errored", name)
	})

The package is built on top of:
  - capitan: For signal-based observability
  - clockz: For testable time operations
  - pipz: For composable processing pipelines in the config subsystem
*/
package bosun
