package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// Platform identifies a supported social network.
type Platform string

const (
	Instagram Platform = "instagram"
	Facebook  Platform = "facebook"
	TikTok    Platform = "tiktok"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{Instagram, Facebook, TikTok}

// ParsePlatform converts user input into a [Platform].
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", shared.ErrUnknownPlatform, s)
	}
	return p, nil
}

// ParsePlatforms parses a list of platform names, dropping duplicates.
func ParsePlatforms(names []string) ([]Platform, error) {
	var out []Platform
	seen := make(map[Platform]bool, len(names))
	for _, n := range names {
		p, err := ParsePlatform(n)
		if err != nil {
			return nil, err
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (p Platform) Valid() bool {
	switch p {
	case Instagram, Facebook, TikTok:
		return true
	}
	return false
}

func (p Platform) String() string { return string(p) }

// ProfileURL builds the public profile address for handle on this platform.
func (p Platform) ProfileURL(handle string) string {
	handle = strings.TrimPrefix(handle, "@")
	switch p {
	case Instagram:
		return "https://www.instagram.com/" + handle + "/"
	case Facebook:
		return "https://www.facebook.com/" + handle
	case TikTok:
		return "https://www.tiktok.com/@" + handle
	}
	return ""
}

// TaskState is the lifecycle state of a [SyncTask].
type TaskState string

const (
	StatePending TaskState = "PENDING"
	StateStarted TaskState = "STARTED"
	StateSuccess TaskState = "SUCCESS"
	StateFailure TaskState = "FAILURE"
	StateRevoked TaskState = "REVOKED"
)

// Terminal reports whether no further transition is possible.
func (s TaskState) Terminal() bool {
	return s == StateSuccess || s == StateFailure || s == StateRevoked
}

func (s TaskState) String() string { return string(s) }

// User owns linked platform accounts and the tasks that sync them.
type User struct {
	ID        string
	Sequence  int
	Email     string
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// NewUser creates an active user stamped with now.
func NewUser(email, name string, now time.Time) *User {
	return &User{Email: email, Name: name, Active: true, CreatedAt: now, UpdatedAt: now}
}

func (u *User) Validate() error {
	if !strings.Contains(u.Email, "@") {
		return fmt.Errorf("%w: email %q", shared.ErrInvalidInput, u.Email)
	}
	return nil
}

// Credential links a user to one external account on one platform.
type Credential struct {
	ID           string
	UserID       string
	Platform     Platform
	Handle       string // external account ref passed to the provider
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Token exposes the stored secret as an [oauth2.Token].
func (c *Credential) Token() *oauth2.Token {
	tok := &oauth2.Token{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken, TokenType: "Bearer"}
	if c.ExpiresAt != nil {
		tok.Expiry = *c.ExpiresAt
	}
	return tok
}

// Usable reports whether the credential can drive a sync at now.
func (c *Credential) Usable(now time.Time) bool {
	tok := c.Token()
	if c.Handle == "" || tok.AccessToken == "" {
		return false
	}
	return tok.Expiry.IsZero() || now.Before(tok.Expiry)
}

func (c *Credential) Validate() error {
	if !c.Platform.Valid() {
		return fmt.Errorf("%w: %q", shared.ErrUnknownPlatform, c.Platform)
	}
	if strings.TrimSpace(c.Handle) == "" {
		return fmt.Errorf("%w: handle is required", shared.ErrInvalidInput)
	}
	return nil
}

// SyncTask is one attempt-tracked unit of work syncing a user's account on a platform.
type SyncTask struct {
	ID              string
	Sequence        int
	UserID          string
	Platform        Platform
	State           TaskState
	Attempts        int
	EligibleAt      time.Time
	RevokeRequested bool
	ClaimedBy       string
	Conflicts       int // attempts rescheduled after a persistence conflict
	ErrorKind       shared.ErrorKind
	ErrorMessage    string
	ResultRef       string // id of the MetricSnapshot written on success
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// Lease identifies one claimed attempt of a task. Writes made under a lease apply only while
// the task is still STARTED by the same worker on the same attempt.
type Lease struct {
	TaskID  string
	Worker  string
	Attempt int
}

// Lease returns the lease of the task's current claim.
func (t *SyncTask) Lease() Lease {
	return Lease{TaskID: t.ID, Worker: t.ClaimedBy, Attempt: t.Attempts}
}

// ProviderProfile is the raw profile payload returned by the provider.
type ProviderProfile struct {
	Platform   Platform
	AccountRef string
	Raw        json.RawMessage
	FetchedAt  time.Time
}

// ProviderPost is one raw post payload returned by the provider.
type ProviderPost struct {
	Platform Platform
	Raw      json.RawMessage
}

// SocialPage is the canonical profile of an external account, unique per (platform, external id).
type SocialPage struct {
	ID             string
	UserID         string
	Platform       Platform
	ExternalID     string
	Username       string
	DisplayName    string
	ProfileURL     string
	AvatarURL      string
	Bio            string
	FollowersCount int64
	FollowingCount int64
	PostsCount     int64
	EngagementRate float64
	SocialScore    float64
	LastSyncedAt   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MetricSnapshot is an append-only record of derived metrics for a page at one point in time.
type MetricSnapshot struct {
	ID                 string
	PageID             string
	TaskID             string
	TakenAt            time.Time
	Followers          int64
	Following          int64
	Posts              int64
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

// Post is a published item on a page, unique per (platform, external id).
type Post struct {
	ID             string
	PageID         string
	Platform       Platform
	ExternalID     string
	Kind           string
	Caption        string
	URL            string
	MediaURL       string
	PublishedAt    *time.Time
	Likes          int64
	Comments       int64
	Shares         int64
	Views          int64
	EngagementRate float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Interactions is likes + comments + shares.
func (p *Post) Interactions() int64 {
	return p.Likes + p.Comments + p.Shares
}

// Comment belongs to exactly one [Post].
type Comment struct {
	ID         string
	PostID     string
	ExternalID string
	Author     string
	Text       string
	Likes      int64
	PostedAt   *time.Time
}

// PostUpdate is a post together with the comments fetched alongside it.
type PostUpdate struct {
	Post     Post
	Comments []Comment
}
