package post

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"autopost/metrics"
)

// StorageKey is the namespace the post collection is persisted under.
const StorageKey = "post-storage"

// maxIDDraws bounds how often AddPost re-draws an id that is already taken.
const maxIDDraws = 8

// Persister stores whole-collection snapshots. Load returns nil data and a nil
// error when nothing has been saved under key yet.
type Persister interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// NopPersister discards snapshots.
type NopPersister struct{}

func (NopPersister) Load(context.Context, string) ([]byte, error) { return nil, nil }
func (NopPersister) Save(context.Context, string, []byte) error   { return nil }

// Store owns the canonical copy of every post. All reads hand out copies.
type Store struct {
	mu        sync.RWMutex
	posts     map[string]*Post
	persister Persister
	ids       IDGenerator
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewStore creates an empty store. A nil persister, id generator or logger
// falls back to a no-op persister, UUIDs and the standard logrus logger.
func NewStore(persister Persister, ids IDGenerator, logger logrus.FieldLogger) *Store {
	if persister == nil {
		persister = NopPersister{}
	}
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		posts:     make(map[string]*Post),
		persister: persister,
		ids:       ids,
		logger:    logger.WithField("component", "post_store"),
		now:       time.Now,
	}
}

// Load replaces the in-memory collection with the persisted snapshot. A
// missing snapshot leaves the store empty.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.persister.Load(ctx, StorageKey)
	if err != nil {
		return fmt.Errorf("load %s: %w", StorageKey, err)
	}
	posts := make(map[string]*Post)
	if len(data) > 0 {
		var list []Post
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("decode %s: %w", StorageKey, err)
		}
		for i := range list {
			p := list[i]
			posts[p.ID] = &p
		}
	}

	s.mu.Lock()
	s.posts = posts
	s.mu.Unlock()

	s.logger.WithField("count", len(posts)).Info("loaded posts")
	return nil
}

// AddPost stores a new post and returns its id. The id and createdAt fields
// of data are ignored; an empty status means draft. New posts are draft or
// scheduled, and a scheduled one needs a scheduledFor in the future.
func (s *Store) AddPost(ctx context.Context, data Post) (string, error) {
	p := data.Clone()
	switch p.Status {
	case "":
		p.Status = StatusDraft
	case StatusPublished, StatusFailed:
		return "", fmt.Errorf("%w: a new post must start as draft or scheduled", ErrValidation)
	}
	if err := p.validate(); err != nil {
		return "", err
	}
	if p.Status == StatusScheduled && !p.ScheduledFor.After(s.now()) {
		return "", fmt.Errorf("%w: scheduledFor must be in the future", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.freshID()
	if err != nil {
		return "", err
	}
	p.ID = id
	p.CreatedAt = s.now().UTC()
	s.posts[id] = &p
	s.persistLocked(ctx)

	s.logger.WithFields(logrus.Fields{"id": id, "status": p.Status}).Debug("post added")
	return id, nil
}

// UpdatePost merges patch into the post with the given id. It returns
// ErrNotFound when the id is absent and an ErrValidation error when the
// merged post breaks an invariant; the stored copy is untouched in both cases.
func (s *Store) UpdatePost(ctx context.Context, id string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.posts[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next, err := patch.apply(*cur)
	if err != nil {
		return err
	}
	s.posts[id] = &next
	s.persistLocked(ctx)
	return nil
}

// DeletePost removes the post if present. Deleting an unknown id is a no-op.
func (s *Store) DeletePost(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return
	}
	delete(s.posts, id)
	s.persistLocked(ctx)
}

// GetPostByID returns a copy of the post with the given id.
func (s *Store) GetPostByID(id string) (Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return Post{}, false
	}
	return p.Clone(), true
}

// GetScheduledPosts returns scheduled posts whose time is strictly in the
// future, ordered by scheduledFor then id.
func (s *Store) GetScheduledPosts() []Post {
	now := s.now()
	return s.filterBySchedule(func(at time.Time) bool { return at.After(now) })
}

// GetDuePosts returns scheduled posts whose time is at or before now, ordered
// by scheduledFor then id.
func (s *Store) GetDuePosts(now time.Time) []Post {
	return s.filterBySchedule(func(at time.Time) bool { return !at.After(now) })
}

// ListPosts returns every post ordered by creation time.
func (s *Store) ListPosts() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p.Clone())
	}
	sortByCreated(out)
	return out
}

func (s *Store) filterBySchedule(keep func(time.Time) bool) []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Post
	for _, p := range s.posts {
		if p.Status != StatusScheduled || p.ScheduledFor == nil {
			continue
		}
		if keep(*p.ScheduledFor) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := *out[i].ScheduledFor, *out[j].ScheduledFor
		if a.Equal(b) {
			return out[i].ID < out[j].ID
		}
		return a.Before(b)
	})
	return out
}

func (s *Store) freshID() (string, error) {
	for i := 0; i < maxIDDraws; i++ {
		id := s.ids.NewID()
		if id == "" {
			continue
		}
		if _, taken := s.posts[id]; !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not draw an unused post id after %d attempts", maxIDDraws)
}

// persistLocked writes the whole collection. Failures are logged and counted;
// the in-memory copy stays authoritative. Callers hold s.mu.
func (s *Store) persistLocked(ctx context.Context) {
	list := make([]Post, 0, len(s.posts))
	for _, p := range s.posts {
		list = append(list, *p)
	}
	sortByCreated(list)

	data, err := json.Marshal(list)
	if err == nil {
		err = s.persister.Save(ctx, StorageKey, data)
	}
	if err != nil {
		metrics.PersistFailures.WithLabelValues(StorageKey).Inc()
		s.logger.WithError(err).WithField("key", StorageKey).Warn("failed to persist posts; keeping in-memory state")
	}
}

func sortByCreated(list []Post) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
