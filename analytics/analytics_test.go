package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopost/post"
)

var fixedNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func newService(seed int64) *Service {
	s := New(seed)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestPostAnalyticsCoversEveryPlatform(t *testing.T) {
	got := newService(42).PostAnalytics("p1")
	require.Len(t, got, 3)
	for i, pl := range post.Platforms {
		m := got[i]
		assert.Equal(t, pl, m.Platform)
		assert.Equal(t, "p1", m.PostID)
		f := platformFactors[pl]
		assert.GreaterOrEqual(t, m.Impressions, int(500*f.Impressions))
		assert.LessOrEqual(t, m.Impressions, int(1499*f.Impressions))
		assert.Positive(t, m.Engagements)
		assert.Equal(t, fixedNow, m.Date)
	}
}

func TestSameSeedSameNumbers(t *testing.T) {
	assert.Equal(t, newService(7).PostAnalytics("x"), newService(7).PostAnalytics("x"))
}

func TestOverviewOfPublishedPosts(t *testing.T) {
	published := fixedNow.Add(-time.Hour)
	posts := []post.Post{
		{ID: "a", Content: "shipped", Status: post.StatusPublished, Platforms: []post.Platform{post.Twitter, post.LinkedIn}, PublishedAt: &published},
		{ID: "b", Content: "half", Status: post.StatusPublished, Platforms: []post.Platform{post.Twitter, post.Facebook},
			PublishResults: map[post.Platform]bool{post.Twitter: true, post.Facebook: false}},
		{ID: "c", Content: "draft", Status: post.StatusDraft, Platforms: []post.Platform{post.Twitter}},
	}

	ov := newService(1).Overview(posts)
	require.Len(t, ov.RecentPosts, 3)
	var sumImp, sumEng int
	for _, r := range ov.RecentPosts {
		assert.NotEqual(t, "c", r.ID)
		assert.False(t, r.ID == "b" && r.Platform == post.Facebook, "failed platforms are skipped")
		sumImp += r.Impressions
		sumEng += r.Engagements
	}
	assert.Equal(t, sumImp, ov.TotalImpressions)
	assert.Equal(t, sumEng, ov.TotalEngagements)
	assert.InDelta(t, float64(sumEng)/float64(sumImp)*100, ov.EngagementRate, 1e-9)
	assert.InDelta(t, ov.EngagementRate*0.4, ov.ClickThroughRate, 1e-9)

	require.Len(t, ov.PlatformBreakdown, 2)
	assert.Equal(t, post.Twitter, ov.PlatformBreakdown[0].Platform)
	assert.Equal(t, post.LinkedIn, ov.PlatformBreakdown[1].Platform)
}

func TestOverviewFallsBackToSamples(t *testing.T) {
	ov := newService(3).Overview(nil)
	assert.Len(t, ov.RecentPosts, samplePosts)
	assert.Positive(t, ov.TotalImpressions)
	for _, r := range ov.RecentPosts {
		assert.NotEmpty(t, r.Content)
		assert.False(t, r.Date.After(fixedNow))
		assert.True(t, r.Date.After(fixedNow.Add(-8*24*time.Hour)))
	}
}
