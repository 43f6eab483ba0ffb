package publisher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"autopost/post"
)

// PostStore is the part of post.Store that PublishStored reads and updates.
type PostStore interface {
	GetPostByID(id string) (post.Post, bool)
	UpdatePost(ctx context.Context, id string, patch post.Patch) error
}

// Dispatcher publishes one post to its platforms.
type Dispatcher interface {
	Publish(ctx context.Context, p post.Post) Result
}

// PublishStored publishes the stored post id right away and records the
// outcome on it: published with publishedAt on success, failed otherwise.
// Posts that are already published, waiting on a schedule, or drafts with a
// scheduledFor time are refused before anything is dispatched.
// A failure to record the outcome is logged and does not change the result.
func PublishStored(ctx context.Context, store PostStore, d Dispatcher, id string, now time.Time, logger logrus.FieldLogger) (Result, error) {
	p, ok := store.GetPostByID(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: post %s", post.ErrNotFound, id)
	}
	if strings.TrimSpace(p.Content) == "" || len(p.Platforms) == 0 {
		return Result{}, fmt.Errorf("%w: content and at least one platform are required to publish", post.ErrValidation)
	}
	switch p.Status {
	case post.StatusPublished:
		return Result{}, fmt.Errorf("%w: post %s is already published", post.ErrValidation, id)
	case post.StatusScheduled:
		return Result{}, fmt.Errorf("%w: post %s is scheduled; cancel the schedule first", post.ErrValidation, id)
	case post.StatusDraft:
		if p.ScheduledFor != nil {
			return Result{}, fmt.Errorf("%w: post %s has a scheduled time; schedule it or clear the time first", post.ErrValidation, id)
		}
	}

	res := d.Publish(ctx, p)

	status := post.StatusFailed
	patch := post.Patch{Status: &status, PublishResults: res.PlatformResults, ClearSchedule: true}
	if res.Success {
		status = post.StatusPublished
		at := now.UTC()
		patch.PublishedAt = &at
	}
	if err := store.UpdatePost(context.WithoutCancel(ctx), id, patch); err != nil && logger != nil {
		logger.WithError(err).WithField("post_id", id).Warn("could not record publish result")
	}
	return res, nil
}
