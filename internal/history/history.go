// Package history keeps a log of every run and the users it discovered.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"trbowatch/internal/pipeline"
	"trbowatch/internal/roster"

	_ "embed"

	random "github.com/mazen160/go-random"
)

//go:embed schema.sql
var Schema string

const (
	StoreRoster    = "roster"
	StoreTalkGroup = "talk-group"
)

// Run is one recorded pipeline run.
type Run struct {
	ID         string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time

	Fetched          int
	NetworkMatches   int
	TalkGroupMatches int
	NewUsers         int
	TalkGroupUsers   int
	EnrichmentMisses int

	// Error is empty for a successful run.
	Error string
}

type DiscoveredUser struct {
	Store string
	roster.User
}

type DB struct {
	db *sql.DB
}

// Open creates the tables on db when they don't exist yet.
func Open(ctx context.Context, db *sql.DB) (DB, error) {
	_, err := db.ExecContext(ctx, Schema)
	if err != nil {
		return DB{}, fmt.Errorf("apply history schema: %w", err)
	}
	return DB{db: db}, nil
}

func newRunID() (string, error) {
	id, err := random.String(12)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Record stores a finished run, err is the error the run ended with. It
// returns the id of the new run.
func (h DB) Record(
	ctx context.Context,
	mode string,
	startedAt, finishedAt time.Time,
	summary pipeline.Summary,
	runErr error,
) (string, error) {
	id, err := newRunID()
	if err != nil {
		return "", err
	}
	var errText string
	if runErr != nil {
		errText = runErr.Error()
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(
		ctx,
		`insert into run(
			id, mode, started_at, finished_at,
			fetched, network_matches, talk_group_matches,
			new_users, talk_group_users, enrichment_misses, error
		) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, mode, startedAt.Unix(), finishedAt.Unix(),
		summary.Fetched, summary.NetworkMatches, summary.TalkGroupMatches,
		len(summary.NewUsers), len(summary.TalkGroupUsers), summary.EnrichmentMisses,
		errText,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	insert := func(store string, users []roster.User) error {
		for _, u := range users {
			_, err := tx.ExecContext(
				ctx,
				`insert into discovered_user(run_id, store, radio_id, callsign, first_name, state)
				values (?, ?, ?, ?, ?, ?)`,
				id, store, u.RadioID, u.Callsign, u.FirstName, u.State,
			)
			if err != nil {
				return fmt.Errorf("insert discovered user %d: %w", u.RadioID, err)
			}
		}
		return nil
	}
	err = insert(StoreRoster, summary.NewUsers)
	if err != nil {
		return "", err
	}
	err = insert(StoreTalkGroup, summary.TalkGroupUsers)
	if err != nil {
		return "", err
	}

	return id, tx.Commit()
}

// Recent returns the last `limit` runs, newest first.
func (h DB) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := h.db.QueryContext(
		ctx,
		`select
			id, mode, started_at, finished_at,
			fetched, network_matches, talk_group_matches,
			new_users, talk_group_users, enrichment_misses, error
		from run
		order by started_at desc, rowid desc
		limit ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt, finishedAt int64
		err = rows.Scan(
			&r.ID, &r.Mode, &startedAt, &finishedAt,
			&r.Fetched, &r.NetworkMatches, &r.TalkGroupMatches,
			&r.NewUsers, &r.TalkGroupUsers, &r.EnrichmentMisses, &r.Error,
		)
		if err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(startedAt, 0)
		r.FinishedAt = time.Unix(finishedAt, 0)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Discovered returns the users recorded for a run.
func (h DB) Discovered(ctx context.Context, runID string) ([]DiscoveredUser, error) {
	rows, err := h.db.QueryContext(
		ctx,
		`select store, radio_id, callsign, first_name, state
		from discovered_user
		where run_id = ?
		order by rowid`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []DiscoveredUser
	for rows.Next() {
		var u DiscoveredUser
		err = rows.Scan(&u.Store, &u.RadioID, &u.Callsign, &u.FirstName, &u.State)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
