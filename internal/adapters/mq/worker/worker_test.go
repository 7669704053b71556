package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	worker "github.com/okian/fsrs/internal/adapters/mq/worker"
	model "github.com/okian/fsrs/internal/domain/model"
	logging "github.com/okian/fsrs/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan model.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan model.Job, 10)}
}

func (mq *mockQueue) Dequeue(_ context.Context) <-chan model.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

type mockFitter struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (f *mockFitter) Fit(ctx context.Context, req model.OptimizationRequest) (model.JobResult, error) {
	f.mu.Lock()
	f.calls++
	err, delay := f.err, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.JobResult{}, ctx.Err()
		}
	}
	if err != nil {
		return model.JobResult{}, err
	}
	return model.JobResult{Parameters: []float64{float64(len(req.Ratings))}, State: "converged", Iterations: 3}, nil
}

type record struct {
	status model.JobStatus
	result model.JobResult
	reason string
}

type mockRecorder struct {
	mu      sync.Mutex
	records map[string]*record
	failOn  string
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{records: make(map[string]*record)}
}

func (r *mockRecorder) MarkRunning(_ context.Context, id string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == r.failOn {
		return errors.New("store unavailable")
	}
	r.records[id] = &record{status: model.JobRunning}
	return nil
}

func (r *mockRecorder) Complete(_ context.Context, id string, result model.JobResult, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id] = &record{status: model.JobSucceeded, result: result}
	return nil
}

func (r *mockRecorder) Fail(_ context.Context, id string, reason string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id] = &record{status: model.JobFailed, reason: reason}
	return nil
}

func (r *mockRecorder) get(id string) (record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return record{}, false
	}
	return *rec, true
}

func (r *mockRecorder) waitTerminal(id string) (record, bool) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rec, ok := r.get(id); ok && rec.status.Terminal() {
			return rec, true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return record{}, false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		fitter := &mockFitter{}
		rec := newMockRecorder()
		w := worker.NewInMemoryWorker(q, fitter, rec, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job succeeds", func() {
			q.jobs <- model.Job{ID: "job-1", Request: model.OptimizationRequest{Ratings: []int{3, 3, 1}}}
			got, ok := rec.waitTerminal("job-1")

			convey.Convey("Then the result should be recorded", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(got.status, convey.ShouldEqual, model.JobSucceeded)
				convey.So(got.result.Parameters, convey.ShouldResemble, []float64{3})
			})
		})

		convey.Convey("When fitting fails", func() {
			fitter.mu.Lock()
			fitter.err = fmt.Errorf("optimize: %w", model.ErrNoTrainableData)
			fitter.mu.Unlock()
			q.jobs <- model.Job{ID: "job-2"}
			got, ok := rec.waitTerminal("job-2")

			convey.Convey("Then the job should be marked failed with the error text", func() {
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(got.status, convey.ShouldEqual, model.JobFailed)
				convey.So(got.reason, convey.ShouldContainSubstring, model.ErrNoTrainableData.Error())
			})
		})

		convey.Convey("When the recorder rejects a job", func() {
			rec.mu.Lock()
			rec.failOn = "job-x"
			rec.mu.Unlock()
			q.jobs <- model.Job{ID: "job-x"}
			q.jobs <- model.Job{ID: "job-y"}
			_, ok := rec.waitTerminal("job-y")

			convey.Convey("Then the worker should keep processing later jobs", func() {
				convey.So(ok, convey.ShouldBeTrue)
				_, seen := rec.get("job-x")
				convey.So(seen, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the worker is shut down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			err := w.Shutdown(sctx)

			convey.Convey("Then it should stop cleanly", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		fitter := &mockFitter{delay: 5 * time.Millisecond}
		rec := newMockRecorder()
		pool := worker.NewPool(3, q, fitter, rec)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When several jobs are queued", func() {
			for i := 0; i < 6; i++ {
				q.jobs <- model.Job{ID: fmt.Sprintf("job-%d", i)}
			}

			convey.Convey("Then every job should finish", func() {
				for i := 0; i < 6; i++ {
					got, ok := rec.waitTerminal(fmt.Sprintf("job-%d", i))
					convey.So(ok, convey.ShouldBeTrue)
					convey.So(got.status, convey.ShouldEqual, model.JobSucceeded)
				}
				convey.So(pool.Size(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When the pool is shut down", func() {
			err := pool.Shutdown(context.Background())

			convey.Convey("Then the workers should stop and the queue close", func() {
				convey.So(err, convey.ShouldBeNil)
				_, open := <-q.jobs
				convey.So(open, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the worker count is not positive", func() {
			p := worker.NewPool(0, newMockQueue(), fitter, rec)

			convey.Convey("Then a single worker should be created", func() {
				convey.So(p.Size(), convey.ShouldEqual, 1)
			})
		})
	})
}
