package dispatch

import (
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/eapache/queue"

	shine "github.com/shine-emu/fiesta/interface/shine"
	"github.com/shine-emu/fiesta/lib/logger"
)

var _ shine.Processor = (*Pool)(nil)

var dispatchedTotal = metrics.GetOrCreateCounter("fiesta_packets_dispatched_total")

// Pool fans jobs out to a fixed set of workers over one shared unbounded
// FIFO. Submitting never blocks, workers block only while the queue is
// empty. The queue has no capacity bound, sustained overload grows it
// without limit.
//
// Pool itself implements shine.Processor, so it can stand in wherever
// processing logic is expected and simply defers the work to its workers.
type Pool struct {
	inner shine.Processor

	mu   sync.Mutex
	cond *sync.Cond
	jobs *queue.Queue
}

// New starts exactly workers goroutines, each holding its own clone of the
// inner processing logic
func New(workers int, inner shine.Processor) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		inner: inner,
		jobs:  queue.New(),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < workers; i++ {
		go p.worker(i, inner.Clone())
	}
	return p
}

func (p *Pool) worker(id int, proc shine.Processor) {
	logger.Debugf("packet worker %d started", id)
	for {
		p.invoke(id, proc, p.pop())
	}
}

// invoke shields the worker from panics in the processing logic, one bad job
// must not take a worker down permanently
func (p *Pool) invoke(id int, proc shine.Processor, job *shine.Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("worker %d: processor panic on opcode %#04x: %v", id, job.Packet.Opcode, r)
		}
	}()
	proc.Process(job)
}

func (p *Pool) pop() *shine.Job {
	p.mu.Lock()
	for p.jobs.Length() == 0 {
		p.cond.Wait()
	}
	job := p.jobs.Remove().(*shine.Job)
	p.mu.Unlock()
	return job
}

// Process enqueues the job and returns immediately
func (p *Pool) Process(job *shine.Job) {
	p.mu.Lock()
	p.jobs.Add(job)
	p.mu.Unlock()
	p.cond.Signal()
	dispatchedTotal.Inc()
}

// Clone returns a handle sharing the same queue and workers
func (p *Pool) Clone() shine.Processor {
	return p
}
