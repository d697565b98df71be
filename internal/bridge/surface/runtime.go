package surface

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/minihost/backend/internal/bridge/envelope"
)

var (
	// ErrNotLoaded is returned when no content is mounted.
	ErrNotLoaded = errors.New("content surface not loaded")
	// ErrScriptTimeout interrupts scripts that run too long.
	ErrScriptTimeout = errors.New("script execution timeout exceeded")
)

// Runtime is a headless content surface: a goja VM with a window-like
// global, a console, timers, a read-only document and the
// ReactNativeWebView.postMessage channel back to the host.
//
// A Runtime is not safe for concurrent use. Everything, including timer
// callbacks, runs on the session's event loop.
type Runtime struct {
	cfg     Config
	sched   Scheduler
	deliver func(raw string)
	logger  *zap.Logger

	vm        *goja.Runtime
	url       string
	epoch     uint64
	timers    map[int64]*time.Timer
	nextTimer int64
	console   []LogEntry
}

// New creates an unloaded runtime. deliver receives every string the
// content posts.
func New(cfg Config, sched Scheduler, deliver func(raw string), logger *zap.Logger) *Runtime {
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = DefaultConfig().ScriptTimeout
	}
	if cfg.MaxCallStackSize <= 0 {
		cfg.MaxCallStackSize = DefaultConfig().MaxCallStackSize
	}
	if cfg.ConsoleLimit <= 0 {
		cfg.ConsoleLimit = DefaultConfig().ConsoleLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		cfg:     cfg,
		sched:   sched,
		deliver: deliver,
		logger:  logger.Named("surface"),
		timers:  make(map[int64]*time.Timer),
	}
}

// Load mounts content in a fresh VM and runs its scripts in order. A script
// that throws is reported to the console and the page carries on; a script
// that is interrupted fails the load.
func (r *Runtime) Load(ctx context.Context, content Content) error {
	r.Unload()

	vm := goja.New()
	vm.SetMaxCallStackSize(r.cfg.MaxCallStackSize)
	r.vm = vm
	r.url = content.URL
	r.console = nil
	r.setupGlobals(content)

	for _, script := range content.Scripts {
		err := r.guard(ctx, func() error {
			_, err := vm.RunScript(script.Name, script.Source)
			return err
		})
		if err == nil {
			continue
		}

		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			r.Unload()
			return fmt.Errorf("script %s: %w", script.Name, err)
		}
		r.record("error", fmt.Sprintf("%s: %v", script.Name, err))
	}

	r.logger.Debug("content mounted",
		zap.String("url", content.URL),
		zap.Int("scripts", len(content.Scripts)))
	return nil
}

// Emit evaluates an outbound invocation built by envelope.Encode.
func (r *Runtime) Emit(script string) error {
	if r.vm == nil {
		return ErrNotLoaded
	}
	vm := r.vm
	return r.guard(context.Background(), func() error {
		_, err := vm.RunString(script)
		return err
	})
}

// Callbacks reports which known callbacks the mounted content defined.
func (r *Runtime) Callbacks() envelope.CallbackSet {
	if r.vm == nil {
		return envelope.NewCallbackSet()
	}

	var defined []string
	global := r.vm.GlobalObject()
	for _, name := range envelope.KnownCallbacks() {
		if _, ok := goja.AssertFunction(global.Get(name)); ok {
			defined = append(defined, name)
		}
	}
	return envelope.NewCallbackSet(defined...)
}

// Loaded reports whether content is mounted.
func (r *Runtime) Loaded() bool {
	return r.vm != nil
}

// URL returns the URL of the mounted content.
func (r *Runtime) URL() string {
	return r.url
}

// Console returns the retained console output.
func (r *Runtime) Console() []LogEntry {
	return append([]LogEntry(nil), r.console...)
}

// Unload discards the VM and its pending timers.
func (r *Runtime) Unload() {
	r.epoch++
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	r.vm = nil
}

// Close releases the runtime.
func (r *Runtime) Close() error {
	r.Unload()
	r.console = nil
	return nil
}

// guard runs fn with the script timeout and ctx wired to vm.Interrupt.
func (r *Runtime) guard(ctx context.Context, fn func() error) error {
	vm := r.vm
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ScriptTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		finished bool
	)
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if finished {
			return
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			vm.Interrupt(ErrScriptTimeout)
		} else {
			vm.Interrupt(ctx.Err())
		}
	})

	err := fn()

	stop()
	mu.Lock()
	finished = true
	mu.Unlock()
	vm.ClearInterrupt()
	return err
}

func (r *Runtime) setupGlobals(content Content) {
	vm := r.vm

	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())

	global := vm.GlobalObject()
	vm.Set("window", global)
	vm.Set("self", global)

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		console.Set(level, r.makeConsoleFunc(level))
	}
	vm.Set("console", console)

	webView := vm.NewObject()
	webView.Set("postMessage", func(call goja.FunctionCall) goja.Value {
		r.deliver(call.Argument(0).String())
		return goja.Undefined()
	})
	vm.Set("ReactNativeWebView", webView)

	epoch := r.epoch
	vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return r.setTimer(epoch, call, false)
	})
	vm.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		return r.setTimer(epoch, call, true)
	})
	vm.Set("clearTimeout", r.clearTimer)
	vm.Set("clearInterval", r.clearTimer)

	location := vm.NewObject()
	location.Set("href", content.URL)
	vm.Set("location", location)

	r.installDocument(content)
}

// minInterval keeps zero-delay intervals from spinning the loop.
const minInterval = 4 * time.Millisecond

type timer struct {
	epoch  uint64
	id     int64
	delay  time.Duration
	repeat bool
	fn     goja.Callable
	args   []goja.Value
}

func (r *Runtime) setTimer(epoch uint64, call goja.FunctionCall, repeat bool) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		return goja.Undefined()
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	if repeat && delay < minInterval {
		delay = minInterval
	}
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	r.nextTimer++
	t := &timer{epoch: epoch, id: r.nextTimer, delay: delay, repeat: repeat, fn: fn, args: args}
	r.arm(t)
	return r.vm.ToValue(t.id)
}

func (r *Runtime) arm(t *timer) {
	r.timers[t.id] = time.AfterFunc(t.delay, func() {
		r.sched.Post(func() { r.fireTimer(t) })
	})
}

func (r *Runtime) clearTimer(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
	return goja.Undefined()
}

func (r *Runtime) fireTimer(t *timer) {
	if t.epoch != r.epoch || r.vm == nil {
		return
	}
	if _, ok := r.timers[t.id]; !ok {
		return
	}
	if !t.repeat {
		delete(r.timers, t.id)
	}

	if err := r.guard(context.Background(), func() error {
		_, err := t.fn(goja.Undefined(), t.args...)
		return err
	}); err != nil {
		r.record("error", fmt.Sprintf("timer: %v", err))
	}

	// The callback may have cleared its own interval or unloaded the page.
	if _, ok := r.timers[t.id]; ok && t.repeat && t.epoch == r.epoch && r.vm != nil {
		r.arm(t)
	}
}

func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		r.record(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (r *Runtime) record(level, message string) {
	if len(r.console) >= r.cfg.ConsoleLimit {
		r.console = r.console[1:]
	}
	r.console = append(r.console, LogEntry{Level: level, Message: message, Time: time.Now()})
	r.logger.Debug("console", zap.String("level", level), zap.String("message", message))
}
