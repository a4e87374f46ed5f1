package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/models"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

// UsersCreate adds an active user.
func (r *Runner) UsersCreate(ctx context.Context, cmd *cli.Command) error {
	s, err := r.stores()
	if err != nil {
		return err
	}

	user := models.NewUser(cmd.String("email"), cmd.String("name"), r.clock.Now())
	if err := s.users.Create(ctx, user); err != nil {
		return err
	}

	r.logger.Info("user created", "user_id", user.ID)
	return r.writePlain("✓ Created user %s (%s)\n", user.ID, user.Email)
}

// UsersList prints users in creation order.
func (r *Runner) UsersList(ctx context.Context, cmd *cli.Command) error {
	s, err := r.stores()
	if err != nil {
		return err
	}

	users, err := s.users.List(ctx, cmd.Bool("active"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(users, true)
	}
	if len(users) == 0 {
		return r.writePlain("No users\n")
	}

	w := tabwriter.NewWriter(r.output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tACTIVE")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", u.ID, u.Email, u.Name, u.Active)
	}
	return w.Flush()
}

// UsersSetActive returns the action for activate or deactivate.
func (r *Runner) UsersSetActive(active bool) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		s, err := r.stores()
		if err != nil {
			return err
		}

		userID := cmd.String("user")
		if err := s.users.SetActive(ctx, userID, active, r.clock.Now()); err != nil {
			return err
		}

		r.logger.Info("user updated", "user_id", userID, "active", active)
		if active {
			return r.writePlain("✓ User %s is active\n", userID)
		}
		return r.writePlain("✓ User %s is inactive\n", userID)
	}
}

// AccountsLink stores the credential for one platform account.
func (r *Runner) AccountsLink(ctx context.Context, cmd *cli.Command) error {
	s, err := r.stores()
	if err != nil {
		return err
	}

	platform, err := models.ParsePlatform(cmd.String("platform"))
	if err != nil {
		return err
	}

	userID := cmd.String("user")
	if _, err := s.users.Get(ctx, userID); err != nil {
		return err
	}

	now := r.clock.Now()
	cred := &models.Credential{
		UserID:       userID,
		Platform:     platform,
		Handle:       cmd.String("handle"),
		AccessToken:  cmd.String("token"),
		RefreshToken: cmd.String("refresh-token"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if ttl := cmd.Duration("expires-in"); ttl > 0 {
		expires := now.Add(ttl)
		cred.ExpiresAt = &expires
	} else if ttl < 0 {
		return fmt.Errorf("%w: --expires-in must not be negative", shared.ErrInvalidArgument)
	}

	if err := s.creds.Upsert(ctx, cred); err != nil {
		return err
	}

	// Never log the token itself.
	r.logger.Info("account linked", "user_id", userID, "platform", platform, "handle", cred.Handle)
	return r.writePlain("✓ Linked %s account %s\n", platform, cred.Handle)
}

// AccountsUnlink removes a credential.
func (r *Runner) AccountsUnlink(ctx context.Context, cmd *cli.Command) error {
	s, err := r.stores()
	if err != nil {
		return err
	}

	platform, err := models.ParsePlatform(cmd.String("platform"))
	if err != nil {
		return err
	}

	userID := cmd.String("user")
	if err := s.creds.Delete(ctx, userID, platform); err != nil {
		return err
	}

	r.logger.Info("account unlinked", "user_id", userID, "platform", platform)
	return r.writePlain("✓ Unlinked %s\n", platform)
}

// AccountsList prints a user's linked accounts and whether each can sync now.
func (r *Runner) AccountsList(ctx context.Context, cmd *cli.Command) error {
	s, err := r.stores()
	if err != nil {
		return err
	}

	creds, err := s.creds.ListByUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		return r.writePlain("No linked accounts\n")
	}

	now := r.clock.Now()
	w := tabwriter.NewWriter(r.output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tHANDLE\tEXPIRES\tUSABLE")
	for _, c := range creds {
		expires := "never"
		if c.ExpiresAt != nil {
			expires = c.ExpiresAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", c.Platform, c.Handle, expires, c.Usable(now))
	}
	return w.Flush()
}
