package transform

import (
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
)

func TestInstagramMapper(t *testing.T) {
	m, _ := MapperFor(models.Instagram)

	t.Run("profile", func(t *testing.T) {
		page, err := m.Profile(json.RawMessage(`{
			"username": "natgeo", "fullName": "National Geographic", "profilePicture": "https://cdn/pic.jpg",
			"biography": "Taking our understanding", "followersCount": 283000000, "followsCount": 150, "postsCount": "30,0"
		}`), "natgeo")
		if err == nil {
			t.Fatalf("expected malformed count to fail, got %+v", page)
		}

		page, err = m.Profile(json.RawMessage(`{
			"username": "natgeo", "fullName": "National Geographic", "profilePicUrl": "https://cdn/pic.jpg",
			"biography": "bio", "followersCount": 283000000, "followsCount": 150, "postsCount": "30000"
		}`), "ignored")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := models.SocialPage{
			Platform:       models.Instagram,
			ExternalID:     "natgeo",
			Username:       "natgeo",
			DisplayName:    "National Geographic",
			ProfileURL:     "https://www.instagram.com/natgeo/",
			AvatarURL:      "https://cdn/pic.jpg",
			Bio:            "bio",
			FollowersCount: 283000000,
			FollowingCount: 150,
			PostsCount:     30000,
		}
		if page != want {
			t.Errorf("got %+v\nwant %+v", page, want)
		}
	})

	t.Run("post", func(t *testing.T) {
		u, err := m.Post(json.RawMessage(`{
			"id": "3141", "caption": "Aurora", "url": "https://www.instagram.com/p/abc/", "displayUrl": "https://cdn/a.jpg",
			"timestamp": "2025-02-20T08:30:00.000Z", "type": "Video", "likesCount": -1, "commentsCount": 12, "videoViewCount": 900,
			"latestComments": [
				{"id": "c1", "text": "wow", "ownerUsername": "ana", "timestamp": "2025-02-20T09:00:00.000Z", "likesCount": 2},
				{"text": "no id"}
			]
		}`), "natgeo")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		p := u.Post
		if p.ExternalID != "3141" || p.Kind != "video" || p.Likes != 0 || p.Comments != 12 || p.Views != 900 {
			t.Errorf("unexpected post %+v", p)
		}
		if p.PublishedAt == nil || !p.PublishedAt.Equal(time.Date(2025, 2, 20, 8, 30, 0, 0, time.UTC)) {
			t.Errorf("unexpected published time %v", p.PublishedAt)
		}
		if len(u.Comments) != 1 || u.Comments[0].Author != "ana" || u.Comments[0].Likes != 2 {
			t.Errorf("expected one comment with an id, got %+v", u.Comments)
		}
	})
}

func TestFacebookMapper(t *testing.T) {
	m, _ := MapperFor(models.Facebook)

	page, err := m.Profile(json.RawMessage(`{"pageId": 100064, "name": "NASA", "about": "Explore", "likes": 27000000, "postsCount": 12}`), "NASA")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if page.ExternalID != "100064" || page.Username != "NASA" || page.FollowersCount != 27000000 || page.ProfileURL != "https://www.facebook.com/NASA" {
		t.Errorf("unexpected page %+v", page)
	}

	tc := []struct {
		name string
		raw  string
		kind string
	}{
		{"image", `{"postId":"p1","text":"hi","imageUrl":"https://cdn/i.jpg","date":"2025-02-01 10:00:00","likesCount":5,"commentsCount":1,"sharesCount":2}`, "image"},
		{"text", `{"id":"p2","text":"hi","time":"2025-02-01T10:00:00.000Z","likesCount":5,"commentsCount":1,"sharesCount":2}`, "text"},
	}
	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			u, err := m.Post(json.RawMessage(tt.raw), "NASA")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if u.Post.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, u.Post.Kind)
			}
			if u.Post.Interactions() != 8 {
				t.Errorf("expected 8 interactions, got %d", u.Post.Interactions())
			}
			if u.Post.PublishedAt == nil || !u.Post.PublishedAt.Equal(time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)) {
				t.Errorf("unexpected published time %v", u.Post.PublishedAt)
			}
		})
	}
}

func TestTikTokMapper(t *testing.T) {
	m, _ := MapperFor(models.TikTok)

	page, err := m.Profile(json.RawMessage(`{"user":{"id":"6745","uniqueId":"nba","nickname":"NBA","avatarMedium":"https://cdn/a.jpg","signature":"ball",
		"stats":{"followerCount":21000000,"followingCount":10,"videoCount":5000}}}`), "nba")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if page.ExternalID != "6745" || page.FollowersCount != 21000000 || page.ProfileURL != "https://www.tiktok.com/@nba" {
		t.Errorf("unexpected page %+v", page)
	}

	u, err := m.Post(json.RawMessage(`{"id":"7300","desc":"dunk","createTime":1738400000,"video":{"downloadAddr":"https://cdn/v.mp4"},
		"stats":{"diggCount":100,"commentCount":10,"shareCount":5,"playCount":4000}}`), "nba")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	p := u.Post
	if p.URL != "https://www.tiktok.com/@nba/video/7300" || p.Kind != "video" || p.Views != 4000 || p.Interactions() != 115 {
		t.Errorf("unexpected post %+v", p)
	}
	if p.PublishedAt == nil || p.PublishedAt.Unix() != 1738400000 {
		t.Errorf("unexpected published time %v", p.PublishedAt)
	}
}

func TestCount(t *testing.T) {
	tc := []struct {
		raw  string
		want count
		ok   bool
	}{
		{`12`, 12, true},
		{`12.0`, 12, true},
		{`"34"`, 34, true},
		{`null`, 0, true},
		{`""`, 0, true},
		{`-1`, 0, true},
		{`"many"`, 0, false},
		{`true`, 0, false},
	}
	for _, tt := range tc {
		var c count
		err := json.Unmarshal([]byte(tt.raw), &c)
		if (err == nil) != tt.ok {
			t.Errorf("%s: unexpected error state %v", tt.raw, err)
			continue
		}
		if tt.ok && c != tt.want {
			t.Errorf("%s: got %d, want %d", tt.raw, c, tt.want)
		}
	}
}
