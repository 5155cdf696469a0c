package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kandev/voicectl/internal/agent/worker"
)

// fakeProcess exits when killed or when exit is called, unless stubborn.
type fakeProcess struct {
	pid      int
	stubborn bool

	kills    atomic.Int32
	exitOnce sync.Once
	exited   chan struct{}
	exitErr  error
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, exited: make(chan struct{})}
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Kill() error {
	p.kills.Add(1)
	if !p.stubborn {
		p.exit(errors.New("signal: killed"))
	}
	return nil
}

func (p *fakeProcess) Wait() error {
	<-p.exited
	return p.exitErr
}

func (p *fakeProcess) exit(err error) {
	p.exitOnce.Do(func() {
		p.exitErr = err
		close(p.exited)
	})
}

// fakeSpawner hands out fakeProcesses with increasing pids.
type fakeSpawner struct {
	mu        sync.Mutex
	nextPid   int
	specs     []worker.Spec
	processes []*fakeProcess
	err       error
	stubborn  bool
	// gate, when set, blocks Spawn until closed.
	gate    chan struct{}
	waiting atomic.Int32
}

func (s *fakeSpawner) Spawn(_ context.Context, spec worker.Spec) (worker.Process, error) {
	if s.gate != nil {
		s.waiting.Add(1)
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs = append(s.specs, spec)
	if s.err != nil {
		return nil, s.err
	}
	s.nextPid++
	p := newFakeProcess(1000 + s.nextPid)
	p.stubborn = s.stubborn
	s.processes = append(s.processes, p)
	return p, nil
}

func (s *fakeSpawner) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.specs)
}

func (s *fakeSpawner) process(i int) *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processes[i]
}

func (s *fakeSpawner) spec(i int) worker.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.specs[i]
}
