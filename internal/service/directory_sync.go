package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnibridge/backend/internal/db"
	"github.com/omnibridge/backend/internal/events"
	"github.com/omnibridge/backend/internal/models"
	"github.com/omnibridge/backend/internal/tracker"
)

var ErrSyncRunning = errors.New("directory sync already running")

// DirectorySync mirrors the tracker's organizations and customers into the
// local directory used for verification.
type DirectorySync struct {
	Repo      Repository
	Directory tracker.Directory
	Events    events.Publisher
	Logger    zerolog.Logger

	mu sync.Mutex
}

type SyncResult struct {
	Organizations            int           `json:"organizations"`
	Users                    int           `json:"users"`
	DeactivatedOrganizations int64         `json:"deactivated_organizations"`
	DeactivatedUsers         int64         `json:"deactivated_users"`
	Duration                 time.Duration `json:"duration_ns"`
}

// Run upserts every organization and member and deactivates rows that no
// longer exist upstream. Running it twice in a row changes nothing the second
// time. An empty upstream directory is treated as a fetch problem and nothing
// is deactivated.
func (d *DirectorySync) Run(ctx context.Context) (SyncResult, error) {
	if !d.mu.TryLock() {
		return SyncResult{}, ErrSyncRunning
	}
	defer d.mu.Unlock()

	start := time.Now()
	res, err := d.run(ctx)
	res.Duration = time.Since(start)
	if err != nil {
		directorySyncs.WithLabelValues("error").Inc()
		d.Logger.Error().Err(err).Msg("directory sync failed")
		return res, err
	}
	directorySyncs.WithLabelValues("ok").Inc()
	d.Logger.Info().
		Int("organizations", res.Organizations).
		Int("users", res.Users).
		Int64("deactivated_organizations", res.DeactivatedOrganizations).
		Int64("deactivated_users", res.DeactivatedUsers).
		Dur("duration", res.Duration).
		Msg("directory sync finished")
	if d.Events != nil {
		d.Events.Publish(ctx, events.DirectorySynced, "directory", map[string]any{
			"organizations": res.Organizations,
			"users":         res.Users,
		})
	}
	return res, nil
}

type orgMembers struct {
	org     tracker.Organization
	members []tracker.Member
}

func (d *DirectorySync) run(ctx context.Context) (SyncResult, error) {
	orgs, err := d.Directory.ListOrganizations(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list organizations: %w", err)
	}
	fetched := make([]orgMembers, 0, len(orgs))
	for _, org := range orgs {
		members, err := d.Directory.ListOrganizationUsers(ctx, org.ID)
		if err != nil {
			return SyncResult{}, fmt.Errorf("list users of %s: %w", org.ID, err)
		}
		fetched = append(fetched, orgMembers{org: org, members: members})
	}

	var res SyncResult
	err = d.Repo.WithTx(ctx, func(tx db.Tx) error {
		res = SyncResult{}
		orgIDs := make([]string, 0, len(fetched))
		seen := map[string]bool{}
		var accountIDs []string

		for _, f := range fetched {
			localID, err := tx.UpsertOrganization(ctx, f.org.ID, f.org.Name)
			if err != nil {
				return fmt.Errorf("upsert organization %s: %w", f.org.ID, err)
			}
			orgIDs = append(orgIDs, f.org.ID)
			res.Organizations++

			for _, m := range f.members {
				if m.AccountID == "" || m.Email == "" || seen[m.AccountID] {
					continue
				}
				seen[m.AccountID] = true
				orgID := localID
				u := &models.User{
					TrackerAccount: m.AccountID,
					Email:          m.Email,
					Name:           m.Name,
					OrganizationID: &orgID,
					IsActive:       m.Active,
				}
				if err := tx.UpsertUser(ctx, u); err != nil {
					return fmt.Errorf("upsert user %s: %w", m.AccountID, err)
				}
				accountIDs = append(accountIDs, m.AccountID)
				res.Users++
			}
		}

		if len(orgIDs) == 0 {
			d.Logger.Warn().Msg("tracker returned no organizations, skipping deactivation")
			return nil
		}
		n, err := tx.DeactivateOrganizationsExcept(ctx, orgIDs)
		if err != nil {
			return fmt.Errorf("deactivate organizations: %w", err)
		}
		res.DeactivatedOrganizations = n
		if accountIDs == nil {
			accountIDs = []string{}
		}
		n, err = tx.DeactivateUsersExcept(ctx, accountIDs)
		if err != nil {
			return fmt.Errorf("deactivate users: %w", err)
		}
		res.DeactivatedUsers = n
		return nil
	})
	return res, err
}
