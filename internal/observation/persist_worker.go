package observation

import (
	"context"
	"log"
	"sync"
	"time"
)

type persistJob struct {
	op   string
	run  func(ctx context.Context) error
	done func(err error) // runs on the loop goroutine
}

// persistWorker executes gateway calls off the loop, one at a time and in order.
// The queue is unbounded so enqueue never blocks the loop.
type persistWorker struct {
	log     *log.Logger
	retries int
	backoff time.Duration
	timeout time.Duration
	post    func(fn func()) bool

	mu    sync.Mutex
	queue []persistJob
	wake  chan struct{}

	quit chan struct{}
	wg   sync.WaitGroup
}

func newPersistWorker(logger *log.Logger, retries int, backoff, timeout time.Duration, post func(fn func()) bool) *persistWorker {
	w := &persistWorker{
		log:     logger,
		retries: retries,
		backoff: backoff,
		timeout: timeout,
		post:    post,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop()
	}()
	return w
}

func (w *persistWorker) enqueue(job persistJob) {
	w.mu.Lock()
	w.queue = append(w.queue, job)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *persistWorker) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *persistWorker) close() {
	close(w.quit)
	w.wg.Wait()
}

func (w *persistWorker) loop() {
	for {
		select {
		case <-w.quit:
			return
		case <-w.wake:
		}
		for {
			w.mu.Lock()
			if len(w.queue) == 0 {
				w.mu.Unlock()
				break
			}
			job := w.queue[0]
			w.queue[0] = persistJob{}
			w.queue = w.queue[1:]
			w.mu.Unlock()

			err := w.attempt(job)
			done := job.done
			if done == nil {
				continue
			}
			if !w.post(func() { done(err) }) {
				return
			}
		}
	}
}

func (w *persistWorker) attempt(job persistJob) error {
	var err error
	for i := 0; i <= w.retries; i++ {
		if i > 0 {
			select {
			case <-w.quit:
				return err
			case <-time.After(time.Duration(i) * w.backoff):
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err = job.run(ctx)
		cancel()
		if err == nil {
			gatewayCalls.WithLabelValues(job.op, "ok").Inc()
			return nil
		}
		gatewayCalls.WithLabelValues(job.op, "error").Inc()
		w.log.Printf("gateway %s attempt %d/%d: %v", job.op, i+1, w.retries+1, err)
	}
	return err
}
