package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"autopost/events"
	"autopost/metrics"
	"autopost/post"
)

// Result is the outcome of one publish call.
type Result struct {
	Success         bool                     `json:"success"`
	PlatformResults map[post.Platform]bool   `json:"platformResults"`
	Errors          map[post.Platform]string `json:"errors,omitempty"`
}

// DefaultDispatchTimeout bounds one platform dispatch.
const DefaultDispatchTimeout = time.Minute

// Orchestrator publishes a post to every targeted platform concurrently.
type Orchestrator struct {
	publishers map[post.Platform]PlatformPublisher
	hub        *events.Hub
	logger     logrus.FieldLogger
	timeout    time.Duration
}

// NewOrchestrator wires the per-platform publishers. hub may be nil.
func NewOrchestrator(publishers map[post.Platform]PlatformPublisher, hub *events.Hub, logger logrus.FieldLogger) *Orchestrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	pubs := make(map[post.Platform]PlatformPublisher, len(publishers))
	for k, v := range publishers {
		pubs[k] = v
	}
	return &Orchestrator{
		publishers: pubs,
		hub:        hub,
		logger:     logger.WithField("component", "publisher"),
		timeout:    DefaultDispatchTimeout,
	}
}

// SetTimeout changes the per-platform dispatch bound. Non-positive values
// keep the current one.
func (o *Orchestrator) SetTimeout(d time.Duration) {
	if d > 0 {
		o.timeout = d
	}
}

// Publish dispatches p to each of its platforms and waits for all of them.
// A failing platform never cancels its siblings, and cancelling ctx does not
// abort dispatches already started; each one is bounded by the timeout. Success is true only when
// at least one platform was targeted and every one of them succeeded.
func (o *Orchestrator) Publish(ctx context.Context, p post.Post) Result {
	targets := dedupe(p.Platforms)
	res := Result{
		PlatformResults: make(map[post.Platform]bool, len(targets)),
		Errors:          map[post.Platform]string{},
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	dctx := context.WithoutCancel(ctx)
	for _, pl := range targets {
		pl := pl
		g.Go(func() error {
			ok, err := o.dispatch(dctx, pl, p)
			mu.Lock()
			res.PlatformResults[pl] = ok
			if err != nil {
				res.Errors[pl] = err.Error()
			} else if !ok {
				res.Errors[pl] = "platform rejected the post"
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res.Success = len(targets) > 0
	for _, ok := range res.PlatformResults {
		res.Success = res.Success && ok
	}
	if len(res.Errors) == 0 {
		res.Errors = nil
	}

	log := o.logger.WithFields(logrus.Fields{"post_id": p.ID, "platforms": len(targets), "success": res.Success})
	ev := events.Event{PostID: p.ID, Success: res.Success, Results: res.PlatformResults, Errors: res.Errors}
	if res.Success {
		ev.Type = events.PostPublished
		log.Info("post published")
	} else {
		ev.Type = events.PostFailed
		if len(targets) == 0 {
			ev.Message = "no platforms selected"
		}
		log.WithField("errors", res.Errors).Warn("post publish failed")
	}
	o.hub.Publish(ev)
	return res
}

func (o *Orchestrator) dispatch(ctx context.Context, pl post.Platform, p post.Post) (ok bool, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panic: %v", r)
		}
		if err != nil {
			ok = false
		}
		metrics.PublishDuration.WithLabelValues(string(pl)).Observe(time.Since(start).Seconds())
		metrics.PublishAttempts.WithLabelValues(string(pl), metrics.Result(ok)).Inc()
		if err != nil {
			o.logger.WithError(err).WithFields(logrus.Fields{"post_id": p.ID, "platform": pl}).Warn("platform publish failed")
		}
	}()

	pub, found := o.publishers[pl]
	if !found {
		return false, fmt.Errorf("no publisher registered for %s", pl)
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return pub.Publish(ctx, p)
}

func dedupe(in []post.Platform) []post.Platform {
	seen := make(map[post.Platform]struct{}, len(in))
	out := make([]post.Platform, 0, len(in))
	for _, pl := range in {
		if _, ok := seen[pl]; ok {
			continue
		}
		seen[pl] = struct{}{}
		out = append(out, pl)
	}
	return out
}
