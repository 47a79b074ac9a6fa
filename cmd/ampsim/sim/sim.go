// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sim runs demo experiments on a simulated pair of cores.
package sim

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"amp.computer/internal/cmdconf"
	"amp.computer/internal/logging"
	"amp.computer/internal/shm"
	"amp.computer/kernel"
	"amp.computer/loader"
	"amp.computer/mailbox"
	"amp.computer/rpcqueue"
	"amp.computer/rtio/rtiosim"
	"amp.computer/runtime"
	"amp.computer/runtime/i2c"
	"amp.computer/tracestore"
	tracesql "amp.computer/tracestore/sql"
	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/term"
	"import.name/confi"

	. "import.name/type/context"
	_ "modernc.org/sqlite"
)

const (
	DefaultQueueChunks  = 16
	DefaultLogChannel   = 4095
	DefaultI2CBuses     = 2
	DefaultEEPROMSize   = 256
	DefaultTraceDriver  = "sqlite"
	DefaultDemoChannel  = 1
	DefaultDemoInterval = 1000
)

var DefaultConfigFiles = []string{
	"/etc/ampsim.toml",
	".config/ampsim.toml",
}

type Config struct {
	Window struct {
		Base uint32
		Size uint32
	}

	Queue struct {
		Size int
	}

	Trace tracesql.Config

	RTIO struct {
		LogChannel uint32
		Counter    uint64
	}

	I2C struct {
		Buses      int
		EEPROMSize int
	}

	Demo DemoConfig

	Log logging.Config
}

// DefaultConfig has an in-memory trace store.
func DefaultConfig() *Config {
	c := new(Config)
	c.Window.Base = loader.PayloadAddress
	c.Window.Size = loader.LastAddress - loader.PayloadAddress
	c.Queue.Size = DefaultQueueChunks * rpcqueue.ChunkSize
	c.Trace.Driver = DefaultTraceDriver
	c.RTIO.LogChannel = DefaultLogChannel
	c.I2C.Buses = DefaultI2CBuses
	c.I2C.EEPROMSize = DefaultEEPROMSize
	c.Demo.Channel = DefaultDemoChannel
	c.Demo.Interval = DefaultDemoInterval
	c.Demo.Pulses = 4
	c.Demo.Repeat = 1
	return c
}

func Main() {
	c := DefaultConfig()

	flag.Usage = confi.FlagUsage(nil, c)
	opt := cmdconf.Options{Files: DefaultConfigFiles}
	if err := cmdconf.Parse(c, flag.CommandLine, os.Args[1:], opt, &c.Trace.DSN); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if c.Log.Journal {
		log.SetFlags(0)
	}
	log, err := logging.Init(c.Log)
	if err != nil {
		log.Error("journal initialization failed", "error", err)
		os.Exit(1)
	}

	names := flag.Args()
	if len(names) == 0 {
		names = DemoNames()
	}
	for _, name := range names {
		if !slices.Contains(DemoNames(), name) {
			log.Error("unknown demo", "demo", name)
			os.Exit(2)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := New(ctx, c, log)
	if err != nil {
		log.Error("simulator initialization failed", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("systemd notification failed", "error", err)
	}

	report := textReport
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		report = lineReport
	}

	for _, name := range names {
		for range c.Demo.Repeat {
			res, err := s.RunDemo(ctx, name)
			if err != nil {
				log.Error("demo failed", "demo", name, "error", err)
				os.Exit(1)
			}
			report(os.Stdout, name, res, s.TakeEvents())
		}
	}

	traces, err := s.TraceNames(ctx)
	if err != nil {
		log.Error("listing DMA traces failed", "error", err)
		os.Exit(1)
	}
	log.Info("DMA traces stored", "names", traces)
}

// Sim is a simulated device.
type Sim struct {
	config  *Config
	log     *slog.Logger
	mem     []byte
	queue   *rpcqueue.Queue
	rtio    *rtiosim.Sim
	eeprom  *i2c.Memory
	traces  tracestore.Store
	closer  io.Closer
	text    kernel.Text
	manager *runtime.Manager
	events  int
}

// New device with the demo services registered.
func New(ctx Context, c *Config, log *slog.Logger) (s *Sim, err error) {
	s = &Sim{
		config: c,
		log:    log,
		rtio:   rtiosim.New(),
		eeprom: &i2c.Memory{Data: make([]byte, c.I2C.EEPROMSize)},
		text:   make(kernel.Text),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	s.rtio.SetCounter(c.RTIO.Counter)

	s.mem, err = shm.Map(c.Queue.Size)
	if err != nil {
		return
	}

	s.queue, err = rpcqueue.New(s.mem)
	if err != nil {
		return
	}
	log.DebugContext(ctx, "RPC queue mapped", "size", len(s.mem), "frames", s.queue.Capacity())

	if c.Trace.Enabled() {
		var store *tracesql.Store
		store, err = tracesql.Open(ctx, c.Trace)
		if err != nil {
			return
		}
		s.traces = store
		s.closer = store
	} else {
		s.traces = tracestore.NewMemory()
	}

	bus := i2c.NewSim(c.I2C.Buses)
	bus.Attach(EEPROMAddr, s.eeprom)

	registry, err := services(log)
	if err != nil {
		return
	}

	kernelEnd, runtimeEnd := mailbox.NewPair()

	start := func(ctx Context) <-chan struct{} {
		k := kernel.New(kernelEnd, s.queue, kernel.Config{
			RTIO:       s.rtio.Registers(),
			DMA:        s.rtio.DMA(),
			Machine:    s.text,
			Window:     loader.NewWindow(c.Window.Base, c.Window.Size),
			LogChannel: c.RTIO.LogChannel,
		})
		go k.Main(ctx)
		return k.Done()
	}

	s.manager = runtime.New(runtimeEnd, s.queue, start, runtime.Config{
		Traces:   s.traces,
		Services: registry,
		I2C:      bus,
		Logger:   log,
	})
	s.manager.SetNow(c.RTIO.Counter)
	return
}

func (s *Sim) Close() error {
	var err error
	if s.closer != nil {
		err = s.closer.Close()
	}
	if e := shm.Unmap(s.mem); err == nil {
		err = e
	}
	return err
}

// Manager of kernel runs.
func (s *Sim) Manager() *runtime.Manager {
	return s.manager
}

// TraceNames lists the stored DMA traces.
func (s *Sim) TraceNames(ctx Context) ([]string, error) {
	return s.traces.Names(ctx)
}

// EEPROM contents.
func (s *Sim) EEPROM() []byte {
	return s.eeprom.Data
}

// TakeEvents returns the output events which have been emitted since the
// previous call.
func (s *Sim) TakeEvents() []rtiosim.Event {
	events := s.rtio.Events()
	fresh := events[s.events:]
	s.events = len(events)
	return fresh
}

// RunDemo builds the named demo kernel and runs it.
func (s *Sim) RunDemo(ctx Context, name string) (*runtime.Result, error) {
	d, found := demos[name]
	if !found {
		return nil, fmt.Errorf("unknown demo %q", name)
	}

	clear(s.text)
	maps.Copy(s.text, d.text(&s.config.Demo))

	image := d.image()
	s.log.DebugContext(ctx, "running demo", "demo", name, "size", len(image))
	return s.manager.Run(ctx, image)
}

func textReport(w io.Writer, name string, res *runtime.Result, events []rtiosim.Event) {
	fmt.Fprintf(w, "%s: run %s\n", name, res.ID)
	if res.Log != "" {
		fmt.Fprintf(w, "  log:\n")
		for _, line := range strings.Split(strings.TrimSuffix(res.Log, "\n"), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
	for _, e := range events {
		kind := "output"
		if e.DMA {
			kind = "dma"
		}
		fmt.Fprintf(w, "  %-6s t=%-8d ch=%-4d addr=%d data=%v\n", kind, e.Timestamp, e.Channel, e.Address, e.Data)
	}
	for _, a := range res.Attributes {
		fmt.Fprintf(w, "  attribute 0x%08x.%s = %v\n", a.Object, a.Name, a.Value)
	}
	switch {
	case res.Exception != nil:
		fmt.Fprintf(w, "  exception: %v at %s\n", res.Exception, res.Exception.Location())
		fmt.Fprintf(w, "  backtrace: %#x\n", res.Backtrace)
	case res.Aborted:
		fmt.Fprintf(w, "  aborted\n")
	default:
		fmt.Fprintf(w, "  finished at %d\n", res.Now)
	}
}

func lineReport(w io.Writer, name string, res *runtime.Result, events []rtiosim.Event) {
	outcome := "finished"
	switch {
	case res.Exception != nil:
		outcome = "exception"
	case res.Aborted:
		outcome = "aborted"
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n", name, res.ID, outcome, res.Now, len(events), len(res.Attributes))
}
