package transform

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// Mapper decodes one platform's payloads into internal entities.
//
// Errors returned by a Mapper describe what is wrong with the payload; [Transform] turns them
// into invariant violations.
type Mapper interface {
	Profile(raw json.RawMessage, accountRef string) (models.SocialPage, error)
	Post(raw json.RawMessage, accountRef string) (models.PostUpdate, error)
}

var mappers = map[models.Platform]Mapper{
	models.Instagram: instagramMapper{},
	models.Facebook:  facebookMapper{},
	models.TikTok:    tiktokMapper{},
}

// MapperFor returns the mapper registered for platform.
func MapperFor(platform models.Platform) (Mapper, error) {
	m, ok := mappers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownPlatform, platform)
	}
	return m, nil
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("undecodable payload: %w", err)
	}
	return nil
}

type instagramMapper struct{}

type instagramProfile struct {
	ID             flexID `json:"id"`
	Username       string `json:"username"`
	FullName       string `json:"fullName"`
	ProfilePicture string `json:"profilePicture"`
	ProfilePicURL  string `json:"profilePicUrl"`
	Biography      string `json:"biography"`
	FollowersCount count  `json:"followersCount"`
	FollowsCount   count  `json:"followsCount"`
	PostsCount     count  `json:"postsCount"`
}

type instagramPost struct {
	ID             flexID `json:"id"`
	ShortCode      string `json:"shortCode"`
	Caption        string `json:"caption"`
	URL            string `json:"url"`
	DisplayURL     string `json:"displayUrl"`
	Timestamp      stamp  `json:"timestamp"`
	Type           string `json:"type"`
	LikesCount     count  `json:"likesCount"`
	CommentsCount  count  `json:"commentsCount"`
	VideoViewCount count  `json:"videoViewCount"`
	LatestComments []struct {
		ID            flexID `json:"id"`
		Text          string `json:"text"`
		OwnerUsername string `json:"ownerUsername"`
		Timestamp     stamp  `json:"timestamp"`
		LikesCount    count  `json:"likesCount"`
	} `json:"latestComments"`
}

func (instagramMapper) Profile(raw json.RawMessage, accountRef string) (models.SocialPage, error) {
	var p instagramProfile
	if err := decode(raw, &p); err != nil {
		return models.SocialPage{}, err
	}

	username := firstNonEmpty(p.Username, accountRef)
	return models.SocialPage{
		Platform:       models.Instagram,
		ExternalID:     firstNonEmpty(string(p.ID), username),
		Username:       username,
		DisplayName:    p.FullName,
		ProfileURL:     models.Instagram.ProfileURL(username),
		AvatarURL:      firstNonEmpty(p.ProfilePicture, p.ProfilePicURL),
		Bio:            p.Biography,
		FollowersCount: int64(p.FollowersCount),
		FollowingCount: int64(p.FollowsCount),
		PostsCount:     int64(p.PostsCount),
	}, nil
}

func (instagramMapper) Post(raw json.RawMessage, _ string) (models.PostUpdate, error) {
	var p instagramPost
	if err := decode(raw, &p); err != nil {
		return models.PostUpdate{}, err
	}

	kind := strings.ToLower(firstNonEmpty(p.Type, "image"))
	u := models.PostUpdate{Post: models.Post{
		Platform:    models.Instagram,
		ExternalID:  firstNonEmpty(p.ID, flexID(p.ShortCode)),
		Kind:        kind,
		Caption:     p.Caption,
		URL:         p.URL,
		MediaURL:    p.DisplayURL,
		PublishedAt: p.Timestamp.ptr(),
		Likes:       int64(p.LikesCount),
		Comments:    int64(p.CommentsCount),
		Views:       int64(p.VideoViewCount),
	}}

	for _, c := range p.LatestComments {
		if c.ID == "" {
			continue
		}
		u.Comments = append(u.Comments, models.Comment{
			ExternalID: string(c.ID),
			Author:     c.OwnerUsername,
			Text:       c.Text,
			Likes:      int64(c.LikesCount),
			PostedAt:   c.Timestamp.ptr(),
		})
	}
	return u, nil
}

type facebookMapper struct{}

type facebookProfile struct {
	ID             flexID `json:"id"`
	PageID         flexID `json:"pageId"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	Title          string `json:"title"`
	ProfilePicture string `json:"profilePicture"`
	About          string `json:"about"`
	Likes          count  `json:"likes"`
	Followers      count  `json:"followers"`
	PostsCount     count  `json:"postsCount"`
}

type facebookPost struct {
	ID            flexID `json:"id"`
	PostID        flexID `json:"postId"`
	Text          string `json:"text"`
	URL           string `json:"url"`
	ImageURL      string `json:"imageUrl"`
	Date          stamp  `json:"date"`
	Time          stamp  `json:"time"`
	LikesCount    count  `json:"likesCount"`
	CommentsCount count  `json:"commentsCount"`
	SharesCount   count  `json:"sharesCount"`
	ViewsCount    count  `json:"viewsCount"`
}

func (facebookMapper) Profile(raw json.RawMessage, accountRef string) (models.SocialPage, error) {
	var p facebookProfile
	if err := decode(raw, &p); err != nil {
		return models.SocialPage{}, err
	}

	username := firstNonEmpty(p.Username, accountRef)
	followers := p.Followers
	if followers == 0 {
		followers = p.Likes
	}
	return models.SocialPage{
		Platform:       models.Facebook,
		ExternalID:     firstNonEmpty(string(p.PageID), string(p.ID), username),
		Username:       username,
		DisplayName:    firstNonEmpty(p.Name, p.Title),
		ProfileURL:     models.Facebook.ProfileURL(username),
		AvatarURL:      p.ProfilePicture,
		Bio:            p.About,
		FollowersCount: int64(followers),
		PostsCount:     int64(p.PostsCount),
	}, nil
}

func (facebookMapper) Post(raw json.RawMessage, _ string) (models.PostUpdate, error) {
	var p facebookPost
	if err := decode(raw, &p); err != nil {
		return models.PostUpdate{}, err
	}

	published := p.Date
	if published.IsZero() {
		published = p.Time
	}
	kind := "text"
	if p.ImageURL != "" {
		kind = "image"
	}
	return models.PostUpdate{Post: models.Post{
		Platform:    models.Facebook,
		ExternalID:  firstNonEmpty(p.PostID, p.ID),
		Kind:        kind,
		Caption:     p.Text,
		URL:         p.URL,
		MediaURL:    p.ImageURL,
		PublishedAt: published.ptr(),
		Likes:       int64(p.LikesCount),
		Comments:    int64(p.CommentsCount),
		Shares:      int64(p.SharesCount),
		Views:       int64(p.ViewsCount),
	}}, nil
}

type tiktokMapper struct{}

type tiktokStats struct {
	FollowerCount  count `json:"followerCount"`
	FollowingCount count `json:"followingCount"`
	VideoCount     count `json:"videoCount"`
}

type tiktokProfile struct {
	User struct {
		ID           flexID      `json:"id"`
		UniqueID     string      `json:"uniqueId"`
		Nickname     string      `json:"nickname"`
		AvatarMedium string      `json:"avatarMedium"`
		Signature    string      `json:"signature"`
		Stats        tiktokStats `json:"stats"`
	} `json:"user"`
	Stats *tiktokStats `json:"stats"`
}

type tiktokPost struct {
	ID         flexID `json:"id"`
	Desc       string `json:"desc"`
	CreateTime stamp  `json:"createTime"`
	Video      struct {
		DownloadAddr string `json:"downloadAddr"`
		Cover        string `json:"cover"`
	} `json:"video"`
	Stats struct {
		DiggCount    count `json:"diggCount"`
		CommentCount count `json:"commentCount"`
		ShareCount   count `json:"shareCount"`
		PlayCount    count `json:"playCount"`
	} `json:"stats"`
}

func (tiktokMapper) Profile(raw json.RawMessage, accountRef string) (models.SocialPage, error) {
	var p tiktokProfile
	if err := decode(raw, &p); err != nil {
		return models.SocialPage{}, err
	}

	stats := p.User.Stats
	if p.Stats != nil {
		stats = *p.Stats
	}
	username := firstNonEmpty(p.User.UniqueID, accountRef)
	return models.SocialPage{
		Platform:       models.TikTok,
		ExternalID:     firstNonEmpty(string(p.User.ID), username),
		Username:       username,
		DisplayName:    p.User.Nickname,
		ProfileURL:     models.TikTok.ProfileURL(username),
		AvatarURL:      p.User.AvatarMedium,
		Bio:            p.User.Signature,
		FollowersCount: int64(stats.FollowerCount),
		FollowingCount: int64(stats.FollowingCount),
		PostsCount:     int64(stats.VideoCount),
	}, nil
}

func (tiktokMapper) Post(raw json.RawMessage, accountRef string) (models.PostUpdate, error) {
	var p tiktokPost
	if err := decode(raw, &p); err != nil {
		return models.PostUpdate{}, err
	}

	id := string(p.ID)
	var url string
	if id != "" {
		url = fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", strings.TrimPrefix(accountRef, "@"), id)
	}
	return models.PostUpdate{Post: models.Post{
		Platform:    models.TikTok,
		ExternalID:  id,
		Kind:        "video",
		Caption:     p.Desc,
		URL:         url,
		MediaURL:    firstNonEmpty(p.Video.DownloadAddr, p.Video.Cover),
		PublishedAt: p.CreateTime.ptr(),
		Likes:       int64(p.Stats.DiggCount),
		Comments:    int64(p.Stats.CommentCount),
		Shares:      int64(p.Stats.ShareCount),
		Views:       int64(p.Stats.PlayCount),
	}}, nil
}
