package transform

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

var asOf = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testParams() Params {
	return Params{
		Window:              30 * 24 * time.Hour,
		Lookback:            24 * time.Hour,
		HorizonPeriods:      30,
		EngagementReference: 0.1,
		GrowthReference:     0.1,
		ReachReference:      100_000,
		EngagementWeight:    0.4,
		GrowthWeight:        0.3,
		ReachWeight:         0.3,
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func instagramProfileFixture(followers int) models.ProviderProfile {
	return models.ProviderProfile{
		Platform:   models.Instagram,
		AccountRef: "natgeo",
		Raw:        json.RawMessage(fmt.Sprintf(`{"id":"787132","username":"natgeo","fullName":"National Geographic","followersCount":%d,"followsCount":150,"postsCount":30000}`, followers)),
		FetchedAt:  asOf,
	}
}

func instagramPostFixture(id string, likes, comments int, at time.Time) models.ProviderPost {
	return models.ProviderPost{
		Platform: models.Instagram,
		Raw: json.RawMessage(fmt.Sprintf(`{"id":%q,"caption":"c","url":"https://www.instagram.com/p/%s/","timestamp":%q,"likesCount":%d,"commentsCount":%d}`,
			id, id, at.Format("2006-01-02T15:04:05.000Z"), likes, comments)),
	}
}

func scenarioAPosts() []models.ProviderPost {
	posts := make([]models.ProviderPost, 5)
	for i := range posts {
		posts[i] = instagramPostFixture(fmt.Sprintf("p%d", i), 10, 2, asOf.Add(-time.Duration(i+1)*24*time.Hour))
	}
	return posts
}

func TestTransform(t *testing.T) {
	t.Run("engagement and growth without history", func(t *testing.T) {
		res, err := Transform(Input{UserID: "u1", Profile: instagramProfileFixture(1000), Posts: scenarioAPosts(), AsOf: asOf}, testParams())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		snap := res.Snapshot
		if snap.GrowthRate != 0 {
			t.Errorf("expected zero growth, got %v", snap.GrowthRate)
		}
		if !approx(snap.EngagementRate, 0.012) {
			t.Errorf("expected engagement 0.012, got %v", snap.EngagementRate)
		}
		if snap.WindowPosts != 5 || snap.TotalLikes != 50 || snap.TotalComments != 10 {
			t.Errorf("unexpected totals %+v", snap)
		}
		if snap.ProjectedFollowers != 1000 {
			t.Errorf("expected flat projection, got %v", snap.ProjectedFollowers)
		}
		if !approx(snap.SocialScore, 0.4*0.12) {
			t.Errorf("expected score 0.048, got %v", snap.SocialScore)
		}
		if !snap.TakenAt.Equal(asOf) {
			t.Errorf("expected snapshot at %v, got %v", asOf, snap.TakenAt)
		}

		if res.Page.UserID != "u1" || res.Page.ExternalID != "787132" || res.Page.FollowersCount != 1000 {
			t.Errorf("unexpected page %+v", res.Page)
		}
		if res.Page.EngagementRate != snap.EngagementRate || res.Page.SocialScore != snap.SocialScore {
			t.Error("page should cache the snapshot's engagement and score")
		}
		if len(res.Posts) != 5 || !approx(res.Posts[0].Post.EngagementRate, 0.012) {
			t.Errorf("expected per-post engagement 0.012, got %+v", res.Posts)
		}
	})

	t.Run("growth against previous snapshot", func(t *testing.T) {
		prev := &models.MetricSnapshot{Followers: 1000}
		res, err := Transform(Input{Profile: instagramProfileFixture(1100), Previous: prev, AsOf: asOf}, testParams())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if !approx(res.Snapshot.GrowthRate, 0.1) {
			t.Errorf("expected growth 0.1, got %v", res.Snapshot.GrowthRate)
		}
		want := 1100 * math.Pow(1.1, 30)
		if !approx(res.Snapshot.ProjectedFollowers, want) {
			t.Errorf("expected projection %v, got %v", want, res.Snapshot.ProjectedFollowers)
		}
		if res.Snapshot.EngagementRate != 0 || res.Snapshot.WindowPosts != 0 {
			t.Errorf("no posts should mean zero engagement, got %+v", res.Snapshot)
		}
		// growth normalizes to exactly 1 against a 0.1 reference
		if !approx(res.Snapshot.SocialScore, 0.3) {
			t.Errorf("expected score 0.3, got %v", res.Snapshot.SocialScore)
		}
	})

	t.Run("growth from zero followers", func(t *testing.T) {
		prev := &models.MetricSnapshot{Followers: 0}
		res, err := Transform(Input{Profile: instagramProfileFixture(5), Previous: prev, AsOf: asOf}, testParams())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Snapshot.GrowthRate != 5 {
			t.Errorf("expected growth 5, got %v", res.Snapshot.GrowthRate)
		}
	})

	t.Run("window bounds", func(t *testing.T) {
		posts := []models.ProviderPost{
			instagramPostFixture("in", 10, 0, asOf.Add(-time.Hour)),
			instagramPostFixture("old", 1000, 0, asOf.Add(-31*24*time.Hour)),
			instagramPostFixture("future", 1000, 0, asOf.Add(time.Hour)),
			{Platform: models.Instagram, Raw: json.RawMessage(`{"id":"undated","likesCount":1000}`)},
		}
		res, err := Transform(Input{Profile: instagramProfileFixture(100), Posts: posts, AsOf: asOf}, testParams())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if res.Snapshot.WindowPosts != 1 || res.Snapshot.TotalLikes != 10 {
			t.Errorf("only the in-window post should count, got %+v", res.Snapshot)
		}
		if len(res.Posts) != 4 {
			t.Errorf("every post should still be returned, got %d", len(res.Posts))
		}
	})

	t.Run("duplicate posts keep the first", func(t *testing.T) {
		posts := []models.ProviderPost{
			instagramPostFixture("dup", 10, 0, asOf.Add(-time.Hour)),
			instagramPostFixture("dup", 99, 0, asOf.Add(-time.Hour)),
		}
		res, err := Transform(Input{Profile: instagramProfileFixture(100), Posts: posts, AsOf: asOf}, testParams())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(res.Posts) != 1 || res.Posts[0].Post.Likes != 10 || res.Snapshot.TotalLikes != 10 {
			t.Errorf("expected the first duplicate only, got %+v", res.Posts)
		}
	})

	t.Run("score is clamped", func(t *testing.T) {
		posts := []models.ProviderPost{instagramPostFixture("viral", 1_000_000, 0, asOf.Add(-time.Hour))}
		prev := &models.MetricSnapshot{Followers: 100_000}
		res, err := Transform(Input{Profile: instagramProfileFixture(10), Posts: posts, Previous: prev, AsOf: asOf}, testParams())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Snapshot.GrowthRate >= 0 {
			t.Fatalf("expected negative growth, got %v", res.Snapshot.GrowthRate)
		}
		if !approx(res.Snapshot.SocialScore, 0.4) {
			t.Errorf("expected engagement capped at 1 and growth floored at 0, got %v", res.Snapshot.SocialScore)
		}
	})
}

func TestTransformDeterminism(t *testing.T) {
	in := Input{
		UserID:   "u1",
		Profile:  instagramProfileFixture(1234),
		Posts:    scenarioAPosts(),
		Previous: &models.MetricSnapshot{Followers: 1200},
		AsOf:     asOf,
	}

	first, err := Transform(in, testParams())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for range 10 {
		again, err := Transform(in, testParams())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("transform is not deterministic:\n%+v\n%+v", first.Snapshot, again.Snapshot)
		}
		if math.Float64bits(first.Snapshot.SocialScore) != math.Float64bits(again.Snapshot.SocialScore) {
			t.Fatal("score differs bitwise")
		}
	}
}

func TestTransformInvariants(t *testing.T) {
	tc := []struct {
		name   string
		in     Input
		reason string
	}{
		{
			name:   "undecodable profile",
			in:     Input{Profile: models.ProviderProfile{Platform: models.Instagram, AccountRef: "x", Raw: json.RawMessage(`[1,2`)}},
			reason: "undecodable",
		},
		{
			name:   "empty profile",
			in:     Input{Profile: models.ProviderProfile{Platform: models.TikTok, AccountRef: "x"}},
			reason: "empty payload",
		},
		{
			name:   "unknown platform",
			in:     Input{Profile: models.ProviderProfile{Platform: "myspace", Raw: json.RawMessage(`{}`)}},
			reason: "unknown platform",
		},
		{
			name:   "profile without id",
			in:     Input{Profile: models.ProviderProfile{Platform: models.Instagram, Raw: json.RawMessage(`{"followersCount":3}`)}},
			reason: "no account id",
		},
		{
			name: "post without id",
			in: Input{Profile: instagramProfileFixture(10), Posts: []models.ProviderPost{
				{Platform: models.Instagram, Raw: json.RawMessage(`{"likesCount":3}`)},
			}},
			reason: "post has no id",
		},
		{
			name: "post with bad timestamp",
			in: Input{Profile: instagramProfileFixture(10), Posts: []models.ProviderPost{
				{Platform: models.Instagram, Raw: json.RawMessage(`{"id":"a","timestamp":"yesterday"}`)},
			}},
			reason: "invalid timestamp",
		},
		{
			name: "post from another platform",
			in: Input{Profile: instagramProfileFixture(10), Posts: []models.ProviderPost{
				{Platform: models.TikTok, Raw: json.RawMessage(`{"id":"a"}`)},
			}},
			reason: "post from tiktok",
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transform(tt.in, testParams())
			if shared.KindOf(err) != shared.KindTransformInvariant {
				t.Fatalf("expected invariant violation, got %v", err)
			}
			if !errors.Is(err, shared.ErrTransformInvariant) {
				t.Error("expected ErrTransformInvariant in chain")
			}

			var inv *InvariantError
			if !errors.As(err, &inv) {
				t.Fatal("expected an InvariantError")
			}
			if !strings.Contains(inv.Reason, tt.reason) {
				t.Errorf("expected reason containing %q, got %q", tt.reason, inv.Reason)
			}
			if len(inv.Ref.Digest) != 64 {
				t.Errorf("expected a sha256 digest, got %q", inv.Ref.Digest)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tc := []struct {
		x, ref, want float64
	}{
		{0.05, 0.1, 0.5},
		{-1, 0.1, 0},
		{5, 0.1, 1},
		{1, 0, 0},
		{math.NaN(), 1, 0},
	}
	for _, tt := range tc {
		if got := normalize(tt.x, tt.ref); !approx(got, tt.want) {
			t.Errorf("normalize(%v, %v) = %v, want %v", tt.x, tt.ref, got, tt.want)
		}
	}
}
