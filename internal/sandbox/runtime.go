package sandbox

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/PenEditor/backend/internal/infrastructure/monitoring"
)

const (
	interruptTimeout = "execution timeout exceeded"
	interruptReload  = "context reloaded"

	minInterval = 4 * time.Millisecond
)

// Emitter delivers a message to the host. It must not block.
type Emitter func(Message) bool

// Loader fetches the source of an external script
type Loader interface {
	Load(ctx context.Context, url string) (string, error)
}

// Runtime is a goja-backed execution context. All VM access happens on the
// runtime's own event loop goroutine; the host only enqueues tasks.
type Runtime struct {
	config  Config
	emit    Emitter
	loader  Loader
	pool    *Pool
	logger  *zap.Logger
	metrics *monitoring.Metrics
	skip    map[string]struct{}

	tasks     chan func()
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	// latest is the most recent generation requested by Reload
	latest atomic.Uint64
	dom    atomic.Pointer[DOM]

	activeMu sync.Mutex
	active   *goja.Runtime

	// owned by the event loop
	vm         *goja.Runtime
	generation uint64
	timers     map[int64]*jsTimer
	nextTimer  int64
}

type jsTimer struct {
	t *time.Timer
}

// NewRuntime starts an execution context. loader may be nil, in which case
// external scripts are not executed.
func NewRuntime(config Config, emit Emitter, loader Loader, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		config: config,
		emit:   emit,
		loader: loader,
		pool:   NewPool(config.PoolSize),
		logger: logger,
		skip:   make(map[string]struct{}, len(config.SkipScripts)),
		tasks:  make(chan func(), config.QueueSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[int64]*jsTimer),
	}
	for _, src := range config.SkipScripts {
		r.skip[src] = struct{}{}
	}
	r.dom.Store(NewDOM())

	r.wg.Add(1)
	go r.loop()

	return r
}

// WithMetrics attaches a metrics collector
func (r *Runtime) WithMetrics(metrics *monitoring.Metrics) *Runtime {
	r.metrics = metrics
	return r
}

// Reload interrupts whatever is running, then swaps in a fresh VM on the
// event loop and signals ready asynchronously.
func (r *Runtime) Reload(generation uint64, ready func(generation uint64)) error {
	r.latest.Store(generation)
	r.interruptActive(interruptReload)

	return r.enqueue(func() {
		if generation != r.latest.Load() {
			return
		}
		r.stopTimers()

		vm := r.pool.Acquire()
		if r.config.MaxCallStackSize > 0 {
			vm.SetMaxCallStackSize(r.config.MaxCallStackSize)
		}
		r.vm = vm
		r.generation = generation
		r.setupGlobals(vm, generation)

		dom := NewDOM()
		r.dom.Store(dom)
		r.bindDocument(vm, dom)
		r.setActive(vm)

		go ready(generation)
	})
}

// Write replaces the document and runs its scripts in document order
func (r *Runtime) Write(generation uint64, document string) error {
	return r.enqueue(func() {
		if generation != r.generation || generation != r.latest.Load() || r.vm == nil {
			return
		}
		r.execute(generation, document)
	})
}

// InjectHead replaces the head content of the current document
func (r *Runtime) InjectHead(generation uint64, head string) error {
	return r.enqueue(func() {
		if generation != r.generation {
			return
		}
		r.dom.Load().SetHead(head)
	})
}

// DOM returns the document proxy of the current run
func (r *Runtime) DOM() *DOM {
	return r.dom.Load()
}

// Close stops the event loop and discards the VM
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		r.interruptActive(interruptReload)
		r.cancel()
		close(r.done)
		r.wg.Wait()
		r.stopTimers()
		r.pool.Close()
		r.setActive(nil)
		r.vm = nil
	})
	return nil
}

func (r *Runtime) loop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.done:
			return
		case task := <-r.tasks:
			task()
		}
	}
}

func (r *Runtime) enqueue(task func()) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}

	select {
	case r.tasks <- task:
		return nil
	case <-r.done:
		return ErrClosed
	}
}

func (r *Runtime) setActive(vm *goja.Runtime) {
	r.activeMu.Lock()
	r.active = vm
	r.activeMu.Unlock()
}

func (r *Runtime) interruptActive(reason string) {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()
	if r.active != nil {
		r.active.Interrupt(reason)
	}
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals(vm *goja.Runtime, generation uint64) {
	// Remove dangerous globals
	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())

	vm.Set("window", vm.GlobalObject())
	vm.Set("self", vm.GlobalObject())

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "error", "warn", "debug"} {
		console.Set(level, r.makeConsoleFunc(generation, Class(level)))
	}
	vm.Set("console", console)

	vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return r.schedule(vm, generation, call, false)
	})
	vm.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		return r.schedule(vm, generation, call, true)
	})
	vm.Set("clearTimeout", r.clearTimer)
	vm.Set("clearInterval", r.clearTimer)
}

// makeConsoleFunc creates a console function. Every level is emitted; the
// relay decides which ones reach the host.
func (r *Runtime) makeConsoleFunc(generation uint64, class Class) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, formatValue(arg))
		}
		r.send(generation, class, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

func (r *Runtime) send(generation uint64, class Class, text string) {
	if r.emit == nil {
		return
	}
	r.emit(Message{
		Class:      class,
		Payload:    html.EscapeString(text),
		Generation: generation,
		Time:       time.Now(),
	})
}

// execute parses the document, binds the proxy and runs every script
func (r *Runtime) execute(generation uint64, document string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		r.send(generation, ClassError, fmt.Sprintf("failed to parse document: %v", err))
		return
	}

	dom := ParseDOM(doc)
	r.dom.Store(dom)
	r.bindDocument(r.vm, dom)

	if len(doc.Nodes) == 0 {
		return
	}

	for i, node := range htmlquery.Find(doc.Nodes[0], "//script") {
		if r.latest.Load() != generation {
			return
		}

		if src := htmlquery.SelectAttr(node, "src"); src != "" {
			r.runLibrary(generation, src)
			continue
		}
		if !executable(htmlquery.SelectAttr(node, "type")) {
			continue
		}
		r.run(generation, fmt.Sprintf("script-%d.js", i), htmlquery.InnerText(node))
	}
}

func executable(scriptType string) bool {
	switch strings.ToLower(strings.TrimSpace(scriptType)) {
	case "", "text/javascript", "application/javascript", "module", "text/babel", "text/jsx":
		return true
	}
	return false
}

func (r *Runtime) runLibrary(generation uint64, src string) {
	if _, ok := r.skip[src]; ok {
		return
	}
	if r.loader == nil {
		r.logger.Debug("External script not loaded", zap.String("src", src))
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.config.Timeout)
	defer cancel()

	source, err := r.loader.Load(ctx, src)
	if err != nil {
		r.send(generation, ClassError, fmt.Sprintf("failed to load %s: %v", src, err))
		return
	}
	r.run(generation, src, source)
}

// run executes source on the current VM under the timeout
func (r *Runtime) run(generation uint64, name, source string) {
	vm := r.vm
	r.guard(generation, vm, func() error {
		_, err := vm.RunScript(name, source)
		return err
	})
}

// guard runs fn with a timeout interrupt and reports its error as a message
func (r *Runtime) guard(generation uint64, vm *goja.Runtime, fn func() error) {
	start := time.Now()
	timer := time.AfterFunc(r.config.Timeout, func() {
		vm.Interrupt(interruptTimeout)
	})
	err := fn()
	timer.Stop()
	vm.ClearInterrupt()

	status := "ok"
	if err != nil {
		status = "error"
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if r.latest.Load() != generation {
				r.record("cancelled", start)
				return
			}
			status = "timeout"
		}
		r.send(generation, ClassError, describe(err))
	}
	r.record(status, start)
}

func (r *Runtime) record(status string, start time.Time) {
	if r.metrics != nil {
		r.metrics.RecordScript(status, time.Since(start))
	}
}

func describe(err error) string {
	var exception *goja.Exception
	if errors.As(err, &exception) && exception.Value() != nil {
		return exception.Value().String()
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprint(interrupted.Value())
	}
	return err.Error()
}

// schedule implements setTimeout and setInterval on the event loop.
// Callbacks of a superseded generation never run.
func (r *Runtime) schedule(vm *goja.Runtime, generation uint64, call goja.FunctionCall, repeat bool) goja.Value {
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
	id := r.nextTimer
	timer := &jsTimer{}
	r.timers[id] = timer

	var arm func()
	arm = func() {
		timer.t = time.AfterFunc(delay, func() {
			_ = r.enqueue(func() {
				if r.generation != generation || r.latest.Load() != generation || r.timers[id] != timer {
					return
				}
				if !repeat {
					delete(r.timers, id)
				}
				r.guard(generation, vm, func() error {
					_, err := fn(goja.Undefined(), args...)
					return err
				})
				if repeat && r.generation == generation && r.timers[id] == timer {
					arm()
				}
			})
		})
	}
	arm()

	return vm.ToValue(id)
}

func (r *Runtime) clearTimer(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if timer, ok := r.timers[id]; ok {
		if timer.t != nil {
			timer.t.Stop()
		}
		delete(r.timers, id)
	}
	return goja.Undefined()
}

func (r *Runtime) stopTimers() {
	for id, timer := range r.timers {
		if timer.t != nil {
			timer.t.Stop()
		}
		delete(r.timers, id)
	}
}

// bindDocument exposes dom as the global document object
func (r *Runtime) bindDocument(vm *goja.Runtime, dom *DOM) {
	document := vm.NewObject()

	query := func(sel string) []*Element {
		elems, err := dom.Query(sel)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return elems
	}
	first := func(elems []*Element) goja.Value {
		if len(elems) == 0 {
			return goja.Null()
		}
		return r.elementObject(vm, dom, elems[0])
	}
	all := func(elems []*Element) goja.Value {
		items := make([]interface{}, 0, len(elems))
		for _, elem := range elems {
			items = append(items, r.elementObject(vm, dom, elem))
		}
		return vm.NewArray(items...)
	}

	document.Set("getElementById", func(id string) goja.Value {
		if elem := dom.ByID(id); elem != nil {
			return r.elementObject(vm, dom, elem)
		}
		return goja.Null()
	})
	document.Set("querySelector", func(sel string) goja.Value { return first(query(sel)) })
	document.Set("querySelectorAll", func(sel string) goja.Value { return all(query(sel)) })
	document.Set("getElementsByClassName", func(names string) goja.Value { return all(dom.ByClass(names)) })
	document.Set("getElementsByTagName", func(tag string) goja.Value { return all(dom.ByTag(tag)) })
	document.Set("body", first(dom.ByTag("body")))

	head := vm.NewObject()
	head.DefineAccessorProperty("innerHTML",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(dom.Head()) }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			dom.SetHead(call.Argument(0).String())
			return goja.Undefined()
		}),
		goja.FLAG_TRUE, goja.FLAG_TRUE)
	document.Set("head", head)

	title := ""
	if titles := dom.ByTag("title"); len(titles) > 0 {
		title = titles[0].Text()
	}
	document.Set("title", title)

	vm.Set("document", document)
}

// elementObject creates a proxy for a DOM element
func (r *Runtime) elementObject(vm *goja.Runtime, dom *DOM, elem *Element) goja.Value {
	obj := vm.NewObject()
	obj.Set("tagName", strings.ToUpper(elem.TagName()))
	obj.DefineAccessorProperty("id",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(elem.ID()) }),
		nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	obj.DefineAccessorProperty("className",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(elem.ClassName()) }),
		nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	setter := func(property, change string, apply func(string)) goja.Value {
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			value := call.Argument(0).String()
			selector := elem.Selector()
			apply(value)
			dom.RecordChange(DOMChange{Type: change, Selector: selector, Property: property, Value: value})
			return goja.Undefined()
		})
	}

	obj.DefineAccessorProperty("textContent",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(elem.Text()) }),
		setter("textContent", "set_text", elem.SetText), goja.FLAG_TRUE, goja.FLAG_TRUE)
	obj.DefineAccessorProperty("innerHTML",
		vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(elem.HTML()) }),
		setter("innerHTML", "set_html", elem.SetHTML), goja.FLAG_TRUE, goja.FLAG_TRUE)

	obj.Set("getAttribute", func(name string) goja.Value {
		value, ok := elem.GetAttribute(name)
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(value)
	})
	obj.Set("setAttribute", func(name, value string) {
		elem.SetAttribute(name, value)
		dom.RecordChange(DOMChange{Type: "set_attribute", Selector: elem.Selector(), Property: name, Value: value})
	})
	obj.Set("remove", func() {
		selector := elem.Selector()
		elem.Remove()
		dom.RecordChange(DOMChange{Type: "remove", Selector: selector})
	})

	return obj
}

// formatValue renders a console argument
func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if obj, ok := v.(*goja.Object); ok {
		switch obj.ClassName() {
		case "Function", "Error":
			return v.String()
		}
		if out, err := sonic.MarshalString(obj.Export()); err == nil {
			return out
		}
	}
	return v.String()
}
