package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/formatter"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// SnapshotsList prints the snapshot history of each of a user's pages.
func (r *Runner) SnapshotsList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	var only models.Platform
	if name := cmd.String("platform"); name != "" {
		if only, err = models.ParsePlatform(name); err != nil {
			return err
		}
	}

	s, err := r.stores()
	if err != nil {
		return err
	}

	userID := cmd.String("user")
	pages, err := s.pages.ListPages(ctx, userID)
	if err != nil {
		return err
	}

	var shown int
	for _, page := range pages {
		if only != "" && page.Platform != only {
			continue
		}
		snaps, err := s.pages.ListSnapshots(ctx, userID, page.Platform, int(cmd.Int("limit")))
		if err != nil {
			return err
		}

		out, err := formatter.Snapshots(format, page, snaps)
		if err != nil {
			return err
		}
		if shown > 0 {
			r.writePlain("\n")
		}
		if _, err := r.output.Write(out); err != nil {
			return err
		}
		shown++
	}

	if shown == 0 {
		return r.writePlain("No synced pages for user %s\n", userID)
	}
	return nil
}

// SnapshotsExport writes one page's history to a file.
func (r *Runner) SnapshotsExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	platform, err := models.ParsePlatform(cmd.String("platform"))
	if err != nil {
		return err
	}

	s, err := r.stores()
	if err != nil {
		return err
	}

	userID := cmd.String("user")
	pages, err := s.pages.ListPages(ctx, userID)
	if err != nil {
		return err
	}

	var page *models.SocialPage
	for _, p := range pages {
		if p.Platform == platform {
			page = p
			break
		}
	}
	if page == nil {
		return fmt.Errorf("%w: no %s page synced for user %s", shared.ErrNotFound, platform, userID)
	}

	snaps, err := s.pages.ListSnapshots(ctx, userID, platform, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	path, err := formatter.WriteSnapshotExport(format, page, snaps, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("snapshots exported", "user_id", userID, "platform", platform, "count", len(snaps), "path", path)
	return r.writePlain("✓ Exported %d snapshot(s) to %s\n", len(snaps), path)
}
