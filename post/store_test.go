package post

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	mu    sync.Mutex
	data  map[string][]byte
	saves int
	err   error
}

func newMemPersister() *memPersister {
	return &memPersister{data: make(map[string][]byte)}
}

func (m *memPersister) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memPersister) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func sequence(prefix string) IDGenerator {
	var mu sync.Mutex
	n := 0
	return IDFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	})
}

func newTestStore(t *testing.T, p Persister) (*Store, *time.Time) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	s := NewStore(p, sequence("post"), logger)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func at(t time.Time) *time.Time { return &t }

func TestAddPostThenGet(t *testing.T) {
	s, now := newTestStore(t, nil)
	ctx := context.Background()

	in := Post{
		Content:   "Launch day",
		ImageURL:  "https://img.example/1.png",
		Platforms: []Platform{Twitter, LinkedIn},
	}
	id, err := s.AddPost(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, ok := s.GetPostByID(id)
	require.True(t, ok)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, in.Content, got.Content)
	assert.Equal(t, in.ImageURL, got.ImageURL)
	assert.Equal(t, in.Platforms, got.Platforms)
	assert.Equal(t, StatusDraft, got.Status)
	assert.False(t, got.CreatedAt.Before(*now))
}

func TestAddPostIgnoresCallerIDAndDedupsPlatforms(t *testing.T) {
	s, _ := newTestStore(t, nil)

	id, err := s.AddPost(context.Background(), Post{
		ID:        "mine",
		Content:   "hello",
		Platforms: []Platform{Facebook, Facebook, Twitter},
	})
	require.NoError(t, err)
	assert.NotEqual(t, "mine", id)

	got, _ := s.GetPostByID(id)
	assert.Equal(t, []Platform{Facebook, Twitter}, got.Platforms)
}

func TestAddPostValidation(t *testing.T) {
	s, now := newTestStore(t, nil)
	ctx := context.Background()

	cases := map[string]Post{
		"scheduled without platforms": {Content: "x", Status: StatusScheduled, ScheduledFor: at(now.Add(time.Hour))},
		"scheduled without time":      {Content: "x", Status: StatusScheduled, Platforms: []Platform{Twitter}},
		"published without content":   {Status: StatusPublished, Platforms: []Platform{Twitter}},
		"created as published":        {Content: "x", Status: StatusPublished, Platforms: []Platform{Twitter}},
		"created as failed":           {Content: "x", Status: StatusFailed, Platforms: []Platform{Twitter}},
		"scheduled in the past":       {Content: "x", Status: StatusScheduled, Platforms: []Platform{Twitter}, ScheduledFor: at(now.Add(-time.Minute))},
		"scheduled for right now":     {Content: "x", Status: StatusScheduled, Platforms: []Platform{Twitter}, ScheduledFor: at(*now)},
		"unknown platform":             {Content: "x", Platforms: []Platform{"myspace"}},
		"unknown status":               {Content: "x", Status: "archived"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.AddPost(ctx, in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Empty(t, s.ListPosts())
}

func TestAddPostRedrawsTakenIDs(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	ids := []string{"a", "a", "a", "b"}
	i := 0
	s := NewStore(nil, IDFunc(func() string {
		id := ids[i]
		i++
		return id
	}), logger)

	first, err := s.AddPost(context.Background(), Post{Content: "1"})
	require.NoError(t, err)
	second, err := s.AddPost(context.Background(), Post{Content: "2"})
	require.NoError(t, err)

	assert.Equal(t, "a", first)
	assert.Equal(t, "b", second)
}

func TestAddPostGivesUpOnExhaustedGenerator(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	s := NewStore(nil, IDFunc(func() string { return "same" }), logger)

	_, err := s.AddPost(context.Background(), Post{Content: "1"})
	require.NoError(t, err)
	_, err = s.AddPost(context.Background(), Post{Content: "2"})
	assert.Error(t, err)
	assert.Len(t, s.ListPosts(), 1)
}

func TestUpdatePost(t *testing.T) {
	s, now := newTestStore(t, nil)
	ctx := context.Background()
	id, err := s.AddPost(ctx, Post{Content: "draft", Platforms: []Platform{Twitter}})
	require.NoError(t, err)

	content := "final copy"
	scheduled := StatusScheduled
	err = s.UpdatePost(ctx, id, Patch{
		Content:      &content,
		ScheduledFor: at(now.Add(24 * time.Hour)),
		Status:       &scheduled,
	})
	require.NoError(t, err)

	got, _ := s.GetPostByID(id)
	assert.Equal(t, "final copy", got.Content)
	assert.Equal(t, StatusScheduled, got.Status)
	assert.Equal(t, []Platform{Twitter}, got.Platforms)
}

func TestUpdatePostNotFound(t *testing.T) {
	s, _ := newTestStore(t, nil)
	content := "x"
	err := s.UpdatePost(context.Background(), "missing", Patch{Content: &content})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePostRejectsBrokenInvariants(t *testing.T) {
	s, now := newTestStore(t, nil)
	ctx := context.Background()
	id, err := s.AddPost(ctx, Post{Content: "draft"})
	require.NoError(t, err)

	scheduled := StatusScheduled
	err = s.UpdatePost(ctx, id, Patch{Status: &scheduled, ScheduledFor: at(now.Add(time.Hour))})
	assert.ErrorIs(t, err, ErrValidation, "no platforms yet")

	got, _ := s.GetPostByID(id)
	assert.Equal(t, StatusDraft, got.Status)
	assert.Nil(t, got.ScheduledFor)
}

func TestUpdatePostCannotSkipScheduled(t *testing.T) {
	s, now := newTestStore(t, nil)
	ctx := context.Background()
	id, err := s.AddPost(ctx, Post{Content: "x", Platforms: []Platform{Twitter}, ScheduledFor: at(now.Add(time.Hour))})
	require.NoError(t, err)

	published := StatusPublished
	err = s.UpdatePost(ctx, id, Patch{Status: &published})
	assert.ErrorIs(t, err, ErrValidation)

	err = s.UpdatePost(ctx, id, Patch{ClearSchedule: true, Status: &published})
	assert.ErrorIs(t, err, ErrValidation, "clearing the time in the same patch does not skip scheduled")
	got, _ := s.GetPostByID(id)
	assert.Equal(t, StatusDraft, got.Status)
	require.NotNil(t, got.ScheduledFor)

	// Once the time is cleared the post can be published straight away.
	require.NoError(t, s.UpdatePost(ctx, id, Patch{ClearSchedule: true}))
	require.NoError(t, s.UpdatePost(ctx, id, Patch{Status: &published}))

	draft := StatusDraft
	err = s.UpdatePost(ctx, id, Patch{Status: &draft})
	assert.ErrorIs(t, err, ErrValidation, "published is terminal")
}

func TestDeletePost(t *testing.T) {
	s, _ := newTestStore(t, nil)
	ctx := context.Background()
	id, err := s.AddPost(ctx, Post{Content: "bye"})
	require.NoError(t, err)

	s.DeletePost(ctx, id)
	_, ok := s.GetPostByID(id)
	assert.False(t, ok)

	s.DeletePost(ctx, id)
	s.DeletePost(ctx, "never-existed")
}

func TestGetScheduledPosts(t *testing.T) {
	s, now := newTestStore(t, nil)
	ctx := context.Background()
	add := func(content string, status Status, when *time.Time) string {
		id, err := s.AddPost(ctx, Post{Content: content, Platforms: []Platform{Twitter}, Status: status, ScheduledFor: when})
		require.NoError(t, err)
		return id
	}

	later := add("later", StatusScheduled, at(now.Add(48*time.Hour)))
	soon := add("soon", StatusScheduled, at(now.Add(3*time.Hour)))
	add("past", StatusScheduled, at(now.Add(time.Hour)))
	add("exactly now", StatusScheduled, at(now.Add(2*time.Hour)))
	add("draft with time", StatusDraft, at(now.Add(3*time.Hour)))
	add("draft", StatusDraft, nil)

	current := now.Add(2 * time.Hour)
	s.now = func() time.Time { return current }

	got := s.GetScheduledPosts()
	require.Len(t, got, 2)
	assert.Equal(t, soon, got[0].ID)
	assert.Equal(t, later, got[1].ID)
	for _, p := range got {
		assert.Equal(t, StatusScheduled, p.Status)
		assert.True(t, p.ScheduledFor.After(current))
	}
}

func TestScheduledPostDropsOutOnceDue(t *testing.T) {
	s, now := newTestStore(t, nil)
	ctx := context.Background()

	id, err := s.AddPost(ctx, Post{
		Content:      "tomorrow",
		Platforms:    []Platform{Twitter, LinkedIn},
		Status:       StatusScheduled,
		ScheduledFor: at(now.Add(24 * time.Hour)),
	})
	require.NoError(t, err)
	require.Len(t, s.GetScheduledPosts(), 1)

	later := now.Add(25 * time.Hour)
	s.now = func() time.Time { return later }
	assert.Empty(t, s.GetScheduledPosts())

	due := s.GetDuePosts(later)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
}

func TestReturnedPostsAreCopies(t *testing.T) {
	s, _ := newTestStore(t, nil)
	id, err := s.AddPost(context.Background(), Post{Content: "x", Platforms: []Platform{Twitter}})
	require.NoError(t, err)

	got, _ := s.GetPostByID(id)
	got.Platforms[0] = Facebook
	got.Content = "mutated"

	again, _ := s.GetPostByID(id)
	assert.Equal(t, "x", again.Content)
	assert.Equal(t, []Platform{Twitter}, again.Platforms)
}

func TestMutationsPersistAndReload(t *testing.T) {
	p := newMemPersister()
	s, now := newTestStore(t, p)
	ctx := context.Background()

	id, err := s.AddPost(ctx, Post{Content: "kept", Platforms: []Platform{LinkedIn}, Status: StatusScheduled, ScheduledFor: at(now.Add(time.Hour))})
	require.NoError(t, err)
	gone, err := s.AddPost(ctx, Post{Content: "gone"})
	require.NoError(t, err)
	s.DeletePost(ctx, gone)
	assert.Equal(t, 3, p.saves)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(p.data[StorageKey], &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "2026-03-01T13:00:00Z", raw[0]["scheduledFor"])
	assert.Equal(t, "2026-03-01T12:00:00Z", raw[0]["createdAt"])

	reloaded, _ := newTestStore(t, p)
	require.NoError(t, reloaded.Load(ctx))
	got, ok := reloaded.GetPostByID(id)
	require.True(t, ok)
	assert.Equal(t, "kept", got.Content)
	assert.Equal(t, StatusScheduled, got.Status)
}

func TestPersistFailureIsLoggedNotReturned(t *testing.T) {
	p := newMemPersister()
	p.err = errors.New("disk full")
	logger, hook := logtest.NewNullLogger()
	s := NewStore(p, nil, logger)

	id, err := s.AddPost(context.Background(), Post{Content: "still here"})
	require.NoError(t, err)

	_, ok := s.GetPostByID(id)
	assert.True(t, ok)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestLoadEmptySnapshot(t *testing.T) {
	s, _ := newTestStore(t, newMemPersister())
	require.NoError(t, s.Load(context.Background()))
	assert.Empty(t, s.ListPosts())
}

func TestWarnings(t *testing.T) {
	long := make([]rune, ShortFormLimit+1)
	for i := range long {
		long[i] = 'a'
	}
	p := Post{Content: string(long), Platforms: []Platform{Twitter, LinkedIn}}
	assert.Len(t, p.Warnings(), 1)

	p.Platforms = []Platform{LinkedIn}
	assert.Empty(t, p.Warnings())
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform(" LinkedIn ")
	require.NoError(t, err)
	assert.Equal(t, LinkedIn, p)

	_, err = ParsePlatform("myspace")
	assert.ErrorIs(t, err, ErrValidation)
}
