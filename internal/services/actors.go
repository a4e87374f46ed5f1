package services

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// actorSpec describes how one platform's scraper is driven.
type actorSpec struct {
	profileInput func(ref string) map[string]any
	postsInput   func(ref string, limit int, since *time.Time) map[string]any
	// postsField names the array holding posts when a dataset item is a whole profile.
	postsField string
}

var proxyInput = map[string]any{"useApifyProxy": true}

var actorSpecs = map[models.Platform]actorSpec{
	models.Instagram: {
		profileInput: func(ref string) map[string]any {
			return map[string]any{"username": []string{ref}, "resultsType": "details", "resultsLimit": 1, "proxy": proxyInput}
		},
		postsInput: func(ref string, limit int, since *time.Time) map[string]any {
			in := map[string]any{"username": []string{ref}, "resultsType": "posts", "resultsLimit": limit, "proxy": proxyInput}
			if since != nil {
				in["onlyPostsNewerThan"] = since.UTC().Format(time.DateOnly)
			}
			return in
		},
	},
	models.Facebook: {
		profileInput: func(ref string) map[string]any {
			return map[string]any{"startUrls": []map[string]string{{"url": models.Facebook.ProfileURL(ref)}}, "resultsType": "details", "proxy": proxyInput}
		},
		postsInput: func(ref string, limit int, since *time.Time) map[string]any {
			in := map[string]any{"startUrls": []map[string]string{{"url": models.Facebook.ProfileURL(ref)}}, "resultsLimit": limit, "proxy": proxyInput}
			if since != nil {
				in["onlyPostsNewerThan"] = since.UTC().Format(time.DateOnly)
			}
			return in
		},
		postsField: "posts",
	},
	models.TikTok: {
		profileInput: func(ref string) map[string]any {
			return map[string]any{"profiles": []string{ref}, "resultsPerPage": 1, "scrollTimeout": 10, "proxy": proxyInput}
		},
		postsInput: func(ref string, limit int, since *time.Time) map[string]any {
			in := map[string]any{"profiles": []string{ref}, "resultsPerPage": limit, "scrollTimeout": 10, "proxy": proxyInput}
			if since != nil {
				in["oldestPostDate"] = since.UTC().Format(time.DateOnly)
			}
			return in
		},
		postsField: "items",
	},
}

// ApifyProvider implements [Provider] on top of [ApifyClient].
type ApifyProvider struct {
	client     *ApifyClient
	actors     map[string]string
	pageSize   int
	postsLimit int
}

// NewApifyProvider maps platforms to the actors configured in cfg.
func NewApifyProvider(client *ApifyClient, cfg shared.ProviderConfig) *ApifyProvider {
	return &ApifyProvider{
		client:     client,
		actors:     cfg.Actors,
		pageSize:   max(cfg.PageSize, 1),
		postsLimit: max(cfg.PostsLimit, 1),
	}
}

func (p *ApifyProvider) lookup(platform models.Platform) (actorSpec, string, error) {
	spec, ok := actorSpecs[platform]
	actor := p.actors[platform.String()]
	if !ok || actor == "" {
		return actorSpec{}, "", shared.NewTaskError(shared.KindPermanent, "platform not configured",
			fmt.Errorf("%w: %s", shared.ErrUnknownPlatform, platform))
	}
	return spec, actor, nil
}

// Profile runs the platform's actor in details mode and returns the first dataset item.
func (p *ApifyProvider) Profile(ctx context.Context, platform models.Platform, accountRef string) (json.RawMessage, error) {
	spec, actor, err := p.lookup(platform)
	if err != nil {
		return nil, err
	}

	run, err := p.client.RunActor(ctx, actor, spec.profileInput(accountRef))
	if err != nil {
		return nil, err
	}

	items, err := p.client.DatasetItems(ctx, run.DefaultDatasetID, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, permanent("account not found")
	}
	return items[0], nil
}

// Posts runs the platform's actor in posts mode and returns a cursor over its dataset.
func (p *ApifyProvider) Posts(ctx context.Context, platform models.Platform, accountRef string, since *time.Time) (PostCursor, error) {
	spec, actor, err := p.lookup(platform)
	if err != nil {
		return nil, err
	}

	run, err := p.client.RunActor(ctx, actor, spec.postsInput(accountRef, p.postsLimit, since))
	if err != nil {
		return nil, err
	}

	return &datasetCursor{
		client:     p.client,
		datasetID:  run.DefaultDatasetID,
		pageSize:   p.pageSize,
		remaining:  p.postsLimit,
		postsField: spec.postsField,
	}, nil
}

// datasetCursor pages a dataset, flattening profile items that embed their posts.
type datasetCursor struct {
	client     *ApifyClient
	datasetID  string
	pageSize   int
	offset     int
	remaining  int
	postsField string
	exhausted  bool
}

func (c *datasetCursor) Next(ctx context.Context) ([]json.RawMessage, bool, error) {
	if c.exhausted || c.remaining <= 0 {
		return nil, true, nil
	}

	page, err := c.client.DatasetItems(ctx, c.datasetID, c.offset, c.pageSize)
	if err != nil {
		return nil, false, err
	}
	if len(page) == 0 {
		c.exhausted = true
		return nil, true, nil
	}
	c.offset += len(page)
	if len(page) < c.pageSize {
		c.exhausted = true
	}

	var posts []json.RawMessage
	for _, item := range page {
		posts = append(posts, expandPosts(item, c.postsField)...)
	}
	if len(posts) > c.remaining {
		posts = posts[:c.remaining]
	}
	c.remaining -= len(posts)
	return posts, false, nil
}

// expandPosts returns the posts embedded under field, or the item itself when it is already a post.
func expandPosts(item json.RawMessage, field string) []json.RawMessage {
	if field == "" {
		return []json.RawMessage{item}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(item, &envelope); err != nil {
		return []json.RawMessage{item}
	}
	embedded, ok := envelope[field]
	if !ok {
		return []json.RawMessage{item}
	}

	var posts []json.RawMessage
	if err := json.Unmarshal(embedded, &posts); err != nil {
		return []json.RawMessage{item}
	}
	return posts
}
