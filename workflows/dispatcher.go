package workflows

import (
	"context"
	"errors"
	"sync"

	"github.com/inngest/inngestgo"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/services"
)

// ErrDispatcherClosed is returned by Dispatch after Shutdown.
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// Dispatcher starts processing of a request in the background.
type Dispatcher interface {
	Dispatch(ctx context.Context, req services.ProcessRequest) error
}

// InngestDispatcher hands requests to the process-questionnaire function.
type InngestDispatcher struct {
	client inngestgo.Client
	log    *zap.SugaredLogger
}

func NewInngestDispatcher(client inngestgo.Client, log *zap.SugaredLogger) *InngestDispatcher {
	return &InngestDispatcher{client: client, log: log}
}

func (d *InngestDispatcher) Dispatch(ctx context.Context, req services.ProcessRequest) error {
	id, err := d.client.Send(ctx, NewProcessEvent(req, "api"))
	if err != nil {
		return err
	}
	d.log.Infof("[Dispatch] Sent %s for questionnaire %s (event %s)", ProcessEventName, req.QuestionnaireID, id)
	return nil
}

// Runner executes a request to completion.
type Runner interface {
	Process(ctx context.Context, req services.ProcessRequest) (*models.FinalReport, error)
}

// LocalDispatcher runs each request in its own goroutine, at most
// concurrency at a time.
type LocalDispatcher struct {
	runner Runner
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	log    *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

func NewLocalDispatcher(runner Runner, concurrency int, log *zap.SugaredLogger) *LocalDispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalDispatcher{
		runner: runner,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Dispatch returns immediately. The request context only bounds the hand-off;
// the run itself lives until it finishes or the dispatcher shuts down.
func (d *LocalDispatcher) Dispatch(_ context.Context, req services.ProcessRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			return
		}
		defer d.sem.Release(1)

		if _, err := d.runner.Process(d.ctx, req); err != nil {
			d.log.Errorf("[LocalDispatcher] Questionnaire %s (%s) failed: %v", req.QuestionnaireID, req.Mode(), err)
			return
		}
		d.log.Infof("[LocalDispatcher] Questionnaire %s (%s) finished", req.QuestionnaireID, req.Mode())
	}()
	return nil
}

// Shutdown stops accepting requests and waits for running ones. When ctx
// expires first, running requests are cancelled.
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
