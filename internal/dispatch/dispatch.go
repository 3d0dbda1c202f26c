// Package dispatch binds the listener, receives datagrams, and fans each
// one out to a bounded pool of workers. The original spawns one goroutine
// per datagram with no cap; this pool bounds concurrency and counts the
// datagrams it has to drop under load instead of spawning without limit.
package dispatch

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ruilisi/golicator/ds"
	"github.com/ruilisi/golicator/internal/decode"
	"github.com/ruilisi/golicator/internal/logsink"
	"github.com/ruilisi/golicator/internal/rule"
	"github.com/ruilisi/golicator/internal/transmit"
	"github.com/sirupsen/logrus"
)

// DefaultWorkerPoolSize bounds the number of datagrams processed
// concurrently when Config.WorkerPoolSize is left at zero.
const DefaultWorkerPoolSize = 256

// maxDatagramSize is the largest UDP payload accepted per read; larger
// datagrams are truncated by the kernel before ReadFromUDP returns them.
const maxDatagramSize = 4096

// jobQueueSize bounds how many received datagrams can wait for a free
// worker before new ones are dropped and counted.
const jobQueueSize = 1024

// State is one stage of the dispatcher lifecycle.
type State int32

const (
	StateInitializing State = iota
	StateBound
	StateServing
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateBound:
		return "bound"
	case StateServing:
		return "serving"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Config holds the per-packet behavior toggles resolved from the
// configuration document.
type Config struct {
	ListenPort     int
	LogTraps       bool
	LogBytes       bool
	SpoofSrc       bool
	WorkerPoolSize int
}

type job struct {
	origin  *net.UDPAddr
	payload []byte
}

// Dispatcher owns the listener socket, the rule table, the log sink, and
// the bounded worker pool.
type Dispatcher struct {
	cfg     Config
	table   *rule.Table
	sink    *logsink.Sink
	counter *transmit.CounterState

	conn    *net.UDPConn
	jobs    chan job
	dropped atomic.Uint64

	state atomic.Int32
	wg    sync.WaitGroup
}

// New builds a Dispatcher. It does not bind a socket yet — call Run to bind
// and serve.
func New(cfg Config, table *rule.Table, sink *logsink.Sink) *Dispatcher {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = DefaultWorkerPoolSize
	}
	d := &Dispatcher{
		cfg:     cfg,
		table:   table,
		sink:    sink,
		counter: &transmit.CounterState{},
		jobs:    make(chan job, jobQueueSize),
	}
	d.state.Store(int32(StateInitializing))
	return d
}

// State reports the dispatcher's current lifecycle stage.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Dropped returns the number of datagrams discarded because the worker
// queue was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Run binds the listener, starts the worker pool, and receives datagrams
// until ctx is canceled or a receive fails. A receive failure other than
// the listener being closed by ctx cancellation is fatal and is returned to
// the caller, which logs it and exits non-zero.
func (d *Dispatcher) Run(ctx context.Context) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: d.cfg.ListenPort})
	if err != nil {
		return fmt.Errorf("dispatch: bind 0.0.0.0:%d: %w", d.cfg.ListenPort, err)
	}
	d.conn = conn
	d.state.Store(int32(StateBound))

	for i := 0; i < d.cfg.WorkerPoolSize; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.state.Store(int32(StateServing))
	d.sink.WriteControl("serving", fmt.Sprintf("listen_port=%d workers=%d", d.cfg.ListenPort, d.cfg.WorkerPoolSize))

	go func() {
		<-ctx.Done()
		d.state.Store(int32(StateTerminating))
		conn.Close()
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				d.shutdown()
				return nil
			}
			d.sink.WriteControl("fatal", fmt.Sprintf("receive error: %v", err))
			d.shutdown()
			return fmt.Errorf("dispatch: receive: %w", err)
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case d.jobs <- job{origin: addr, payload: payload}:
		default:
			d.dropped.Add(1)
			logrus.WithField("origin", addr.String()).Warn("dropping datagram, worker queue full")
		}
	}
}

// shutdown stops accepting new work and writes the terminating control
// record without waiting for the workers: queued jobs are not drained and
// in-flight sends are abandoned.
func (d *Dispatcher) shutdown() {
	close(d.jobs)
	d.sink.WriteControl("terminating", fmt.Sprintf("dropped=%d", d.dropped.Load()))
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handle(j)
	}
}

// handle runs the per-packet pipeline: match, optional data-log record,
// then one send per destination. Errors at any step are logged and do not
// affect other packets or other destinations of this one.
func (d *Dispatcher) handle(j job) {
	originIP := j.origin.IP.To4()
	if originIP == nil {
		return
	}

	dests := d.table.Match(originIP)
	if len(dests) == 0 {
		d.sink.WriteControl("warning", fmt.Sprintf("packet from %s originates outside allowed subnets", originIP))
		return
	}

	if d.cfg.LogTraps {
		d.logTrap(j, dests)
	}

	originPort := uint16(j.origin.Port)
	var originIPArr [4]byte
	copy(originIPArr[:], originIP)
	origin := rule.Endpoint{IP: originIPArr, Port: originPort}

	for _, dest := range dests.Values() {
		if err := transmit.Send(origin, dest, j.payload, d.cfg.SpoofSrc, d.counter); err != nil {
			d.sink.WriteControl("warning", fmt.Sprintf("send to %s failed: %v", dest, err))
		}
	}
}

func (d *Dispatcher) logTrap(j job, dests ds.Set[rule.Endpoint]) {
	destStrs := make([]string, 0, len(dests))
	for _, dest := range dests.Values() {
		destStrs = append(destStrs, dest.String())
	}

	lines := []string{
		fmt.Sprintf("origin=%s dest=%v", j.origin.IP, destStrs),
		decode.Decode(j.payload),
	}
	if d.cfg.LogBytes {
		lines = append(lines, hex.EncodeToString(j.payload))
	}
	d.sink.WriteData(lines...)
}
