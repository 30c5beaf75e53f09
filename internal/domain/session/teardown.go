package session

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Teardown notifies subscribers that the owning process is going away
type Teardown interface {
	// OnTeardown registers fn and returns a func that unregisters it
	OnTeardown(fn func()) (cancel func())
}

type listeners struct {
	mu   sync.Mutex
	fns  map[int]func()
	next int
}

func (l *listeners) add(fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func())
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *listeners) fire() {
	l.mu.Lock()
	fns := make([]func(), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// ManualTeardown fires only when told to. Embedders and tests use it to
// simulate process teardown.
type ManualTeardown struct {
	listeners
}

// NewManualTeardown creates a manual trigger
func NewManualTeardown() *ManualTeardown {
	return &ManualTeardown{}
}

func (m *ManualTeardown) OnTeardown(fn func()) func() {
	return m.add(fn)
}

// Fire runs every registered listener
func (m *ManualTeardown) Fire() {
	m.fire()
}

// SignalTeardown fires once on the first of its signals (SIGINT and SIGTERM
// by default). It then stops intercepting, so a repeated signal gets the
// default behaviour. Signal handling starts lazily with the first listener.
type SignalTeardown struct {
	listeners
	signals []os.Signal

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
	exited  chan struct{}
	fired   chan struct{}
}

// NewSignalTeardown creates a signal-driven trigger
func NewSignalTeardown(signals ...os.Signal) *SignalTeardown {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	return &SignalTeardown{
		signals: signals,
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		fired:   make(chan struct{}),
	}
}

func (s *SignalTeardown) OnTeardown(fn func()) func() {
	cancel := s.add(fn)
	s.start()
	return cancel
}

// Fired is closed after listeners have run
func (s *SignalTeardown) Fired() <-chan struct{} {
	return s.fired
}

// Stop stops intercepting signals without running listeners and waits for
// the watcher goroutine to exit.
func (s *SignalTeardown) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	close(s.done)
	s.mu.Unlock()

	if started {
		<-s.exited
	}
}

func (s *SignalTeardown) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, s.signals...)

	go func() {
		defer close(s.exited)
		defer signal.Stop(ch)
		select {
		case <-ch:
			signal.Stop(ch)
			s.fire()
			close(s.fired)
		case <-s.done:
		}
	}()
}
