// Package scheduler keeps the collection of posts queued for a future time
// and publishes them once they fall due.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"autopost/events"
	"autopost/metrics"
	"autopost/post"
	"autopost/publisher"
)

// StorageKey is the namespace scheduled entries are persisted under.
const StorageKey = "scheduledPosts"

const maxIDDraws = 8

// Entry is a scheduled copy of a post. ID is the schedule id; PostID links
// back to the post store when the entry was created from a stored post.
type Entry struct {
	post.Post
	PostID string `json:"postId,omitempty"`
}

// Outcome reports what happened to one due post. EntryID is empty for a
// post that was scheduled directly in the post store.
type Outcome struct {
	EntryID string           `json:"entryId,omitempty"`
	PostID  string           `json:"postId,omitempty"`
	Result  publisher.Result `json:"result"`
}

// Publisher fans a post out to its platforms.
type Publisher interface {
	Publish(ctx context.Context, p post.Post) publisher.Result
}

// PostStore is the part of post.Store the scheduler reads and updates.
type PostStore interface {
	GetPostByID(id string) (post.Post, bool)
	GetDuePosts(now time.Time) []post.Post
	UpdatePost(ctx context.Context, id string, patch post.Patch) error
}

// Deps are the collaborators of a Service. Only Publisher is needed for
// RunDue; everything else has a usable zero value.
type Deps struct {
	Persister post.Persister
	IDs       post.IDGenerator
	Publisher Publisher
	Posts     PostStore
	Hub       *events.Hub
	Logger    logrus.FieldLogger
}

// Service validates and stores scheduled entries.
type Service struct {
	mu      sync.Mutex
	entries []Entry
	runMu   sync.Mutex

	persister post.Persister
	ids       post.IDGenerator
	publisher Publisher
	posts     PostStore
	hub       *events.Hub
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewService creates an empty scheduling service.
func NewService(d Deps) *Service {
	if d.Persister == nil {
		d.Persister = post.NopPersister{}
	}
	if d.IDs == nil {
		d.IDs = post.UUIDGenerator{}
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	return &Service{
		persister: d.Persister,
		ids:       d.IDs,
		publisher: d.Publisher,
		posts:     d.Posts,
		hub:       d.Hub,
		logger:    d.Logger.WithField("component", "scheduler"),
		now:       time.Now,
	}
}

// Load replaces the in-memory entries with the persisted snapshot.
func (s *Service) Load(ctx context.Context) error {
	data, err := s.persister.Load(ctx, StorageKey)
	if err != nil {
		return fmt.Errorf("load %s: %w", StorageKey, err)
	}
	var list []Entry
	if len(data) > 0 {
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("decode %s: %w", StorageKey, err)
		}
	}
	s.mu.Lock()
	s.entries = list
	s.mu.Unlock()
	s.logger.WithField("entries", len(list)).Debug("loaded scheduled posts")
	return nil
}

// Schedule validates p and queues a copy of it. p.ID, when set, is kept as
// the entry's PostID and the stored post is moved to scheduled as well; a
// stored post can have at most one pending entry.
// Validation errors wrap post.ErrValidation and happen before any I/O.
func (s *Service) Schedule(ctx context.Context, p post.Post) (string, error) {
	now := s.now()
	if strings.TrimSpace(p.Content) == "" {
		return "", fmt.Errorf("%w: content is required", post.ErrValidation)
	}
	platforms, err := post.NormalizePlatforms(p.Platforms)
	if err != nil {
		return "", err
	}
	if len(platforms) == 0 {
		return "", fmt.Errorf("%w: at least one platform is required", post.ErrValidation)
	}
	if p.ScheduledFor == nil {
		return "", fmt.Errorf("%w: scheduledFor is required", post.ErrValidation)
	}
	if !p.ScheduledFor.After(now) {
		return "", fmt.Errorf("%w: scheduledFor must be in the future", post.ErrValidation)
	}

	e := Entry{Post: p.Clone(), PostID: p.ID}
	e.Platforms = platforms
	e.Status = post.StatusScheduled
	e.CreatedAt = now.UTC()
	e.PublishResults = nil
	e.PublishedAt = nil
	at := e.ScheduledFor.UTC()
	e.ScheduledFor = &at

	id, err := s.add(ctx, e)
	if err != nil {
		return "", err
	}

	s.logger.WithFields(logrus.Fields{"entry_id": id, "post_id": e.PostID, "scheduled_for": at}).Info("post scheduled")
	s.hub.Publish(events.Event{Type: events.PostScheduled, PostID: firstNonEmpty(e.PostID, id), Success: true})
	return id, nil
}

// add stores e under a fresh id. It holds s.mu throughout, so two schedules
// of one stored post cannot both pass the pending check. The id is drawn
// before the stored post is touched.
func (s *Service) add(ctx context.Context, e Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var replaced string
	if e.PostID != "" {
		for _, cur := range s.entries {
			if cur.PostID != e.PostID || cur.Status != post.StatusScheduled {
				continue
			}
			if s.posts == nil {
				return "", fmt.Errorf("%w: post %s already has a pending schedule", post.ErrValidation, e.PostID)
			}
			if _, live := s.linked(cur); live {
				return "", fmt.Errorf("%w: post %s already has a pending schedule", post.ErrValidation, e.PostID)
			}
			replaced = cur.ID
		}
	}

	id, err := s.freshIDLocked()
	if err != nil {
		return "", err
	}

	if e.PostID != "" && s.posts != nil {
		status := post.StatusScheduled
		err := s.posts.UpdatePost(ctx, e.PostID, post.Patch{
			Status:       &status,
			Platforms:    e.Platforms,
			ScheduledFor: e.ScheduledFor,
		})
		if err != nil {
			return "", fmt.Errorf("schedule post %s: %w", e.PostID, err)
		}
	}

	if replaced != "" {
		s.removeLocked(replaced)
	}
	e.ID = id
	s.entries = append(s.entries, e)
	s.persistLocked(ctx)
	return id, nil
}

// List returns copies of all entries ordered by scheduled time.
func (s *Service) List() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.clone())
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledFor.Before(*out[j].ScheduledFor)
	})
	return out
}

// Get returns a copy of the entry with id.
func (s *Service) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.entries[i].clone(), true
	}
	return Entry{}, false
}

// Cancel removes a still-scheduled entry. The linked post goes back to
// draft unless it was rescheduled or moved on in the post store since.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: scheduled entry %s", post.ErrNotFound, id)
	}
	e := s.entries[i]
	if e.Status != post.StatusScheduled {
		s.mu.Unlock()
		return fmt.Errorf("%w: entry %s is already %s", post.ErrValidation, id, e.Status)
	}
	revert := false
	if e.PostID != "" && s.posts != nil {
		_, revert = s.linked(e)
	}
	s.removeLocked(id)
	s.persistLocked(ctx)
	s.mu.Unlock()

	if revert {
		draft := post.StatusDraft
		if err := s.posts.UpdatePost(ctx, e.PostID, post.Patch{Status: &draft, ClearSchedule: true}); err != nil {
			s.logger.WithError(err).WithField("post_id", e.PostID).Warn("could not return cancelled post to draft")
		}
	}
	s.logger.WithField("entry_id", id).Info("scheduled post cancelled")
	return nil
}

type dueJob struct {
	entryID string
	postID  string
	at      time.Time
	post    post.Post
}

// RunDue publishes every scheduled entry whose time is at or before now,
// together with due posts scheduled directly in the post store without an
// entry. An entry linked to a stored post publishes the post as it is now;
// entries whose post was deleted, rescheduled or moved out of scheduled are
// dropped instead. Jobs run one after another in time order and each
// fan-out is concurrent.
func (s *Service) RunDue(ctx context.Context, now time.Time) []Outcome {
	if s.publisher == nil {
		s.logger.Error("run due called without a publisher")
		return nil
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()

	jobs := s.collectDue(ctx, now)
	outcomes := make([]Outcome, 0, len(jobs))
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		res := s.publisher.Publish(ctx, j.post)
		s.record(context.WithoutCancel(ctx), j, res)
		metrics.DueRuns.WithLabelValues(metrics.Result(res.Success)).Inc()
		outcomes = append(outcomes, Outcome{EntryID: j.entryID, PostID: j.postID, Result: res})
	}
	if len(outcomes) > 0 {
		s.logger.WithField("published", len(outcomes)).Info("due posts processed")
	}
	return outcomes
}

func (s *Service) collectDue(ctx context.Context, now time.Time) []dueJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		jobs    []dueJob
		stale   []string
		pending = make(map[string]bool)
	)
	for _, e := range s.entries {
		if e.Status != post.StatusScheduled || e.ScheduledFor == nil {
			continue
		}
		j := dueJob{entryID: e.ID, postID: e.PostID, at: *e.ScheduledFor, post: e.Post.Clone()}
		if e.PostID != "" {
			j.post.ID = e.PostID
		}
		if e.PostID != "" && s.posts != nil {
			cur, live := s.linked(e)
			if !live {
				stale = append(stale, e.ID)
				continue
			}
			pending[e.PostID] = true
			j.post = cur
		}
		if !e.ScheduledFor.After(now) {
			jobs = append(jobs, j)
		}
	}

	if s.posts != nil {
		for _, p := range s.posts.GetDuePosts(now) {
			if pending[p.ID] || p.ScheduledFor == nil {
				continue
			}
			jobs = append(jobs, dueJob{postID: p.ID, at: *p.ScheduledFor, post: p})
		}
	}

	if len(stale) > 0 {
		for _, id := range stale {
			s.removeLocked(id)
		}
		s.persistLocked(ctx)
		s.logger.WithField("entries", stale).Info("dropped scheduled entries whose post changed")
	}

	sort.SliceStable(jobs, func(i, k int) bool { return jobs[i].at.Before(jobs[k].at) })
	return jobs
}

// linked returns the stored post behind e while it is still scheduled for
// the entry's time. e.PostID and s.posts must be set.
func (s *Service) linked(e Entry) (post.Post, bool) {
	cur, ok := s.posts.GetPostByID(e.PostID)
	if !ok || cur.Status != post.StatusScheduled || cur.ScheduledFor == nil || e.ScheduledFor == nil {
		return post.Post{}, false
	}
	if !cur.ScheduledFor.Equal(*e.ScheduledFor) {
		return post.Post{}, false
	}
	return cur, true
}

// Run calls RunDue every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	s.RunDue(ctx, s.now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunDue(ctx, s.now())
		}
	}
}

func (s *Service) record(ctx context.Context, j dueJob, res publisher.Result) {
	status := post.StatusFailed
	var publishedAt *time.Time
	if res.Success {
		status = post.StatusPublished
		t := s.now().UTC()
		publishedAt = &t
	}

	if j.entryID != "" {
		s.mu.Lock()
		if i := s.indexLocked(j.entryID); i >= 0 {
			cur := &s.entries[i]
			cur.Content = j.post.Content
			cur.ImageURL = j.post.ImageURL
			cur.Platforms = append([]post.Platform(nil), j.post.Platforms...)
			cur.Status = status
			cur.PublishResults = copyResults(res.PlatformResults)
			cur.PublishedAt = publishedAt
			s.persistLocked(ctx)
		}
		s.mu.Unlock()
	}

	if j.postID == "" || s.posts == nil {
		return
	}
	err := s.posts.UpdatePost(ctx, j.postID, post.Patch{
		Status:         &status,
		PublishResults: copyResults(res.PlatformResults),
		PublishedAt:    publishedAt,
	})
	if err != nil {
		s.logger.WithError(err).WithField("post_id", j.postID).Warn("could not record publish result on post")
	}
}

func (s *Service) removeLocked(id string) {
	if i := s.indexLocked(id); i >= 0 {
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
	}
}

func (s *Service) indexLocked(id string) int {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) freshIDLocked() (string, error) {
	for i := 0; i < maxIDDraws; i++ {
		id := s.ids.NewID()
		if id != "" && s.indexLocked(id) < 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not draw an unused id after %d attempts", maxIDDraws)
}

func (s *Service) persistLocked(ctx context.Context) {
	list := s.entries
	if list == nil {
		list = []Entry{}
	}
	data, err := json.Marshal(list)
	if err == nil {
		err = s.persister.Save(ctx, StorageKey, data)
	}
	if err != nil {
		metrics.PersistFailures.WithLabelValues(StorageKey).Inc()
		s.logger.WithError(err).WithField("key", StorageKey).Warn("failed to persist scheduled posts")
	}
}

func (e Entry) clone() Entry {
	return Entry{Post: e.Post.Clone(), PostID: e.PostID}
}

func copyResults(in map[post.Platform]bool) map[post.Platform]bool {
	if in == nil {
		return nil
	}
	out := make(map[post.Platform]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
