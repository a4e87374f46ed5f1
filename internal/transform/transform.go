package transform

import (
	"math"
	"time"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// Params are the metric settings shared by every transform.
type Params struct {
	Window              time.Duration // posts published within Window before AsOf count towards engagement and reach
	Lookback            time.Duration // growth compares against the latest snapshot at or before AsOf - Lookback
	HorizonPeriods      int
	EngagementReference float64
	GrowthReference     float64
	ReachReference      float64
	EngagementWeight    float64
	GrowthWeight        float64
	ReachWeight         float64
}

// ParamsFromConfig copies the metrics section of the configuration.
func ParamsFromConfig(cfg shared.MetricsConfig) Params {
	return Params{
		Window:              cfg.Window,
		Lookback:            cfg.Lookback,
		HorizonPeriods:      cfg.HorizonPeriods,
		EngagementReference: cfg.EngagementReference,
		GrowthReference:     cfg.GrowthReference,
		ReachReference:      cfg.ReachReference,
		EngagementWeight:    cfg.EngagementWeight,
		GrowthWeight:        cfg.GrowthWeight,
		ReachWeight:         cfg.ReachWeight,
	}
}

// Input is everything one transform reads.
type Input struct {
	UserID   string
	Profile  models.ProviderProfile
	Posts    []models.ProviderPost
	Previous *models.MetricSnapshot // nil when no snapshot exists in the lookback window
	AsOf     time.Time
}

// Result is the page, posts, and snapshot derived from one sync.
//
// IDs and foreign keys are left empty for the repository to assign.
type Result struct {
	Page     models.SocialPage
	Posts    []models.PostUpdate
	Snapshot models.MetricSnapshot
}

// Metrics are the derived values of a snapshot.
type Metrics struct {
	WindowPosts        int64
	TotalLikes         int64
	TotalComments      int64
	TotalShares        int64
	TotalViews         int64
	EngagementRate     float64
	GrowthRate         float64
	ProjectedFollowers float64
	Reach              int64
	SocialScore        float64
}

// Transform decodes the payloads in in and computes the snapshot metrics.
//
// Posts are deduplicated by external id, keeping the first occurrence. Posts without a
// publication time are kept but never fall inside the window.
func Transform(in Input, p Params) (*Result, error) {
	platform := in.Profile.Platform
	profileRef := refOf(platform, in.Profile.AccountRef, "profile", in.Profile.Raw)
	mapper, err := MapperFor(platform)
	if err != nil {
		return nil, violation(profileRef, "%v", err)
	}

	page, err := mapper.Profile(in.Profile.Raw, in.Profile.AccountRef)
	if err != nil {
		return nil, violation(profileRef, "%v", err)
	}
	if page.ExternalID == "" {
		return nil, violation(profileRef, "profile has no account id")
	}
	page.UserID = in.UserID

	posts := make([]models.PostUpdate, 0, len(in.Posts))
	seen := make(map[string]bool, len(in.Posts))
	for _, raw := range in.Posts {
		postRef := refOf(platform, in.Profile.AccountRef, "post", raw.Raw)
		if raw.Platform != "" && raw.Platform != platform {
			return nil, violation(postRef, "post from %s in a %s sync", raw.Platform, platform)
		}

		u, err := mapper.Post(raw.Raw, page.Username)
		if err != nil {
			return nil, violation(postRef, "%v", err)
		}
		if u.Post.ExternalID == "" {
			return nil, violation(postRef, "post has no id")
		}
		if seen[u.Post.ExternalID] {
			continue
		}
		seen[u.Post.ExternalID] = true

		u.Post.EngagementRate = PostEngagement(u.Post.Interactions(), page.FollowersCount)
		posts = append(posts, u)
	}

	m := Compute(page.FollowersCount, posts, in.Previous, in.AsOf, p)
	page.EngagementRate = m.EngagementRate
	page.SocialScore = m.SocialScore

	return &Result{
		Page:  page,
		Posts: posts,
		Snapshot: models.MetricSnapshot{
			TakenAt:            in.AsOf.UTC(),
			Followers:          page.FollowersCount,
			Following:          page.FollowingCount,
			Posts:              page.PostsCount,
			WindowPosts:        m.WindowPosts,
			TotalLikes:         m.TotalLikes,
			TotalComments:      m.TotalComments,
			TotalShares:        m.TotalShares,
			TotalViews:         m.TotalViews,
			EngagementRate:     m.EngagementRate,
			GrowthRate:         m.GrowthRate,
			ProjectedFollowers: m.ProjectedFollowers,
			Reach:              m.Reach,
			SocialScore:        m.SocialScore,
		},
	}, nil
}

// Compute derives the snapshot metrics for an account with followers followers.
func Compute(followers int64, posts []models.PostUpdate, previous *models.MetricSnapshot, asOf time.Time, p Params) Metrics {
	var m Metrics
	from := asOf.Add(-p.Window)
	for _, u := range posts {
		at := u.Post.PublishedAt
		if at == nil || at.Before(from) || at.After(asOf) {
			continue
		}
		m.WindowPosts++
		m.TotalLikes += u.Post.Likes
		m.TotalComments += u.Post.Comments
		m.TotalShares += u.Post.Shares
		m.TotalViews += u.Post.Views
	}

	if m.WindowPosts > 0 {
		interactions := m.TotalLikes + m.TotalComments + m.TotalShares
		m.EngagementRate = float64(interactions) / float64(max(1, followers)) / float64(m.WindowPosts)
	}
	if previous != nil {
		m.GrowthRate = float64(followers-previous.Followers) / float64(max(1, previous.Followers))
	}
	m.ProjectedFollowers = float64(followers) * math.Pow(1+m.GrowthRate, float64(p.HorizonPeriods))
	m.Reach = m.TotalViews

	m.SocialScore = p.EngagementWeight*normalize(m.EngagementRate, p.EngagementReference) +
		p.GrowthWeight*normalize(m.GrowthRate, p.GrowthReference) +
		p.ReachWeight*normalize(float64(m.Reach), p.ReachReference)
	return m
}

// PostEngagement is a single post's interactions relative to the page's followers.
func PostEngagement(interactions, followers int64) float64 {
	return float64(interactions) / float64(max(1, followers))
}

// normalize scales x against ref and clamps to [0,1].
func normalize(x, ref float64) float64 {
	if ref <= 0 || math.IsNaN(x) {
		return 0
	}
	return min(max(x/ref, 0), 1)
}
