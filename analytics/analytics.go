// Package analytics produces plausible engagement numbers for posts. There is
// no upstream metrics source; numbers are drawn from a seeded faker.
package analytics

import (
	"sort"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"autopost/post"
)

// Factors scale the base impression count per metric.
type Factors struct {
	Impressions float64
	Engagements float64
	Clicks      float64
	Shares      float64
	Likes       float64
	Comments    float64
}

var platformFactors = map[post.Platform]Factors{
	post.Twitter:  {Impressions: 1.5, Engagements: 2.0, Clicks: 0.8, Shares: 2.5, Likes: 3.0, Comments: 1.0},
	post.LinkedIn: {Impressions: 1.0, Engagements: 0.7, Clicks: 1.5, Shares: 0.5, Likes: 1.0, Comments: 2.0},
	post.Facebook: {Impressions: 2.0, Engagements: 1.2, Clicks: 1.0, Shares: 1.0, Likes: 2.5, Comments: 1.5},
}

// PlatformMetrics are the numbers of one post on one platform.
type PlatformMetrics struct {
	PostID      string        `json:"postId"`
	Platform    post.Platform `json:"platform"`
	Impressions int           `json:"impressions"`
	Engagements int           `json:"engagements"`
	Clicks      int           `json:"clicks"`
	Shares      int           `json:"shares"`
	Likes       int           `json:"likes"`
	Comments    int           `json:"comments"`
	Date        time.Time     `json:"date"`
}

type PlatformBreakdown struct {
	Platform    post.Platform `json:"platform"`
	Impressions int           `json:"impressions"`
	Engagements int           `json:"engagements"`
	CTR         float64       `json:"ctr"`
}

type RecentPost struct {
	ID          string        `json:"id"`
	Content     string        `json:"content"`
	Platform    post.Platform `json:"platform"`
	Impressions int           `json:"impressions"`
	Engagements int           `json:"engagements"`
	Date        time.Time     `json:"date"`
}

// Overview aggregates recent post performance.
type Overview struct {
	TotalImpressions  int                 `json:"totalImpressions"`
	TotalEngagements  int                 `json:"totalEngagements"`
	EngagementRate    float64             `json:"engagementRate"`
	ClickThroughRate  float64             `json:"clickThroughRate"`
	PlatformBreakdown []PlatformBreakdown `json:"platformBreakdown"`
	RecentPosts       []RecentPost        `json:"recentPosts"`
}

// samplePosts is how many sample posts Overview invents when no post has been
// published yet.
const samplePosts = 5

// Service draws numbers from a faker. The same seed yields the same
// sequence of numbers.
type Service struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
	now   func() time.Time
}

// New creates a service. A zero seed picks a random one.
func New(seed int64) *Service {
	return &Service{faker: gofakeit.New(seed), now: time.Now}
}

// PostAnalytics returns numbers for postID on every platform.
func (s *Service) PostAnalytics(postID string) []PlatformMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	out := make([]PlatformMetrics, 0, len(post.Platforms))
	for _, pl := range post.Platforms {
		out = append(out, s.sampleLocked(postID, pl, now))
	}
	return out
}

// Overview summarises published posts. With nothing published it reports on
// invented sample posts so dashboards have something to show.
func (s *Service) Overview(posts []post.Post) Overview {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var recent []RecentPost
	for _, p := range posts {
		if p.Status != post.StatusPublished {
			continue
		}
		date := p.CreatedAt
		if p.PublishedAt != nil {
			date = *p.PublishedAt
		}
		for _, pl := range p.Platforms {
			if ok, tracked := p.PublishResults[pl]; tracked && !ok {
				continue
			}
			m := s.sampleLocked(p.ID, pl, date)
			recent = append(recent, RecentPost{
				ID: p.ID, Content: p.Content, Platform: pl,
				Impressions: m.Impressions, Engagements: m.Engagements, Date: date,
			})
		}
	}
	if len(recent) == 0 {
		for i := 0; i < samplePosts; i++ {
			pl := post.Platforms[s.faker.Number(0, len(post.Platforms)-1)]
			date := now.Add(-time.Duration(s.faker.Number(0, 7*24*3600)) * time.Second)
			id := s.faker.UUID()
			m := s.sampleLocked(id, pl, date)
			recent = append(recent, RecentPost{
				ID: id, Content: s.faker.Sentence(8), Platform: pl,
				Impressions: m.Impressions, Engagements: m.Engagements, Date: date,
			})
		}
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].Date.After(recent[j].Date) })

	var ov Overview
	byPlatform := map[post.Platform]*PlatformBreakdown{}
	for _, r := range recent {
		ov.TotalImpressions += r.Impressions
		ov.TotalEngagements += r.Engagements
		b, ok := byPlatform[r.Platform]
		if !ok {
			b = &PlatformBreakdown{Platform: r.Platform}
			byPlatform[r.Platform] = b
		}
		b.Impressions += r.Impressions
		b.Engagements += r.Engagements
	}
	for _, pl := range post.Platforms {
		b, ok := byPlatform[pl]
		if !ok {
			continue
		}
		b.CTR = percent(float64(b.Engagements), b.Impressions)
		ov.PlatformBreakdown = append(ov.PlatformBreakdown, *b)
	}
	ov.EngagementRate = percent(float64(ov.TotalEngagements), ov.TotalImpressions)
	ov.ClickThroughRate = percent(float64(ov.TotalEngagements)*0.4, ov.TotalImpressions)
	ov.RecentPosts = recent
	return ov
}

func (s *Service) sampleLocked(postID string, pl post.Platform, date time.Time) PlatformMetrics {
	f, ok := platformFactors[pl]
	if !ok {
		f = platformFactors[post.LinkedIn]
	}
	base := float64(s.faker.Number(500, 1499))
	jitter := func(weight, ratio float64) int {
		return int(base * weight * ratio * s.faker.Float64Range(0.75, 1.25))
	}
	return PlatformMetrics{
		PostID:      postID,
		Platform:    pl,
		Impressions: int(base * f.Impressions),
		Engagements: jitter(f.Engagements, 0.2),
		Clicks:      jitter(f.Clicks, 0.1),
		Shares:      jitter(f.Shares, 0.03),
		Likes:       jitter(f.Likes, 0.08),
		Comments:    jitter(f.Comments, 0.02),
		Date:        date,
	}
}

func percent(num float64, denom int) float64 {
	if denom == 0 {
		return 0
	}
	return num / float64(denom) * 100
}
