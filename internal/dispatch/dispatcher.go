package dispatch

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// DefaultWorkers is the number of concurrent workers of an install
const DefaultWorkers = 5

// Strategy selects how packages are handed to workers
type Strategy string

const (
	// RoundRobin assigns package i to worker i mod n before any work starts
	RoundRobin Strategy = "roundrobin"
	// Queue lets idle workers pull the next package from a shared queue
	Queue Strategy = "queue"
)

// Job processes a single requested package
type Job func(ctx context.Context, ref string) error

// Failure is a job that returned an error or panicked
type Failure struct {
	Ref    string
	Worker int
	Err    error
}

// Summary aggregates a dispatch run
type Summary struct {
	Processed int
	Failures  []Failure
	Elapsed   time.Duration
}

// Dispatcher runs jobs across a fixed pool of workers
type Dispatcher struct {
	workers  int
	strategy Strategy
	progress io.Writer
	logger   *zap.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithWorkers sets the number of workers
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithStrategy sets how packages are assigned to workers
func WithStrategy(s Strategy) Option {
	return func(d *Dispatcher) {
		d.strategy = s
	}
}

// WithProgress renders a progress bar to w. A nil writer disables it.
func WithProgress(w io.Writer) Option {
	return func(d *Dispatcher) {
		d.progress = w
	}
}

// New creates a Dispatcher
func New(logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		workers:  DefaultWorkers,
		strategy: RoundRobin,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Partition splits refs into n sublists, index i going to sublist i mod n.
// Order within each sublist follows refs.
func Partition(refs []string, n int) [][]string {
	if n < 1 {
		n = 1
	}
	parts := make([][]string, n)
	for i, ref := range refs {
		parts[i%n] = append(parts[i%n], ref)
	}
	return parts
}

// Run processes every ref exactly once and waits for all workers. A failing
// or panicking job is logged and recorded; it never stops other jobs.
func (d *Dispatcher) Run(ctx context.Context, refs []string, job Job) Summary {
	start := time.Now()
	bar := d.newBar(len(refs))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		summary  Summary
		failures []Failure
	)

	process := func(worker int, ref string) {
		err := d.safeRun(ctx, job, ref)

		mu.Lock()
		summary.Processed++
		if err != nil {
			failures = append(failures, Failure{Ref: ref, Worker: worker, Err: err})
		}
		mu.Unlock()

		if err != nil {
			d.logger.Error("failed", zap.String("package", ref), zap.Int("worker", worker), zap.Error(err))
		}
		if bar != nil {
			bar.Add(1)
		}
	}

	switch d.strategy {
	case Queue:
		jobs := make(chan string, len(refs))
		for _, ref := range refs {
			jobs <- ref
		}
		close(jobs)

		for w := 0; w < d.workers; w++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				for ref := range jobs {
					process(worker, ref)
				}
			}(w)
		}
	default:
		for w, part := range Partition(refs, d.workers) {
			if len(part) == 0 {
				continue
			}
			wg.Add(1)
			go func(worker int, part []string) {
				defer wg.Done()
				for _, ref := range part {
					process(worker, ref)
				}
			}(w, part)
		}
	}

	wg.Wait()
	if bar != nil {
		bar.Finish()
	}

	summary.Failures = failures
	summary.Elapsed = time.Since(start)
	return summary
}

// safeRun converts a panic inside job into an error
func (d *Dispatcher) safeRun(ctx context.Context, job Job, ref string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing %s: %v", ref, r)
		}
	}()
	return job(ctx, ref)
}

func (d *Dispatcher) newBar(total int) *progressbar.ProgressBar {
	if d.progress == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(d.progress),
		progressbar.OptionSetDescription("installing mods"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}
