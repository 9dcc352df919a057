package history

import (
	"context"
	"testing"
	"time"
	"trbowatch/internal/pipeline"
	"trbowatch/internal/roster"
	"trbowatch/internal/scrapers/callwatch"
	configlibsql "trbowatch/lib/configutil/libsql"
	"trbowatch/lib/testutil"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) DB {
	t.Helper()
	sqlite := testutil.SetupDB(t, testutil.DBParams{Name: "history"})

	h, err := Open(context.Background(), sqlite)
	require.NoError(t, err)
	return h
}

func TestRecordAndRecent(t *testing.T) {
	h := openTestDB(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	firstID, err := h.Record(ctx, "callwatch", start, start.Add(time.Minute), pipeline.Summary{
		Fetched:        120,
		NetworkMatches: 40,
		NewUsers: []roster.User{
			{RadioID: 2002, Callsign: "KX1BB", FirstName: "Bob", State: "NM"},
		},
		TalkGroupUsers: []roster.User{{RadioID: 3003}},
	}, nil)
	require.NoError(t, err)
	require.Len(t, firstID, 12)

	_, err = h.Record(ctx, "backend", start.Add(time.Hour), start.Add(time.Hour), pipeline.Summary{}, callwatch.ErrAuthFailure)
	require.NoError(t, err)

	runs, err := h.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "backend", runs[0].Mode)
	require.Equal(t, callwatch.ErrAuthFailure.Error(), runs[0].Error)

	first := runs[1]
	require.Equal(t, firstID, first.ID)
	require.Equal(t, 120, first.Fetched)
	require.Equal(t, 40, first.NetworkMatches)
	require.Equal(t, 1, first.NewUsers)
	require.Equal(t, 1, first.TalkGroupUsers)
	require.Empty(t, first.Error)
	require.True(t, first.StartedAt.Equal(start))

	users, err := h.Discovered(ctx, firstID)
	require.NoError(t, err)
	require.Equal(t, []DiscoveredUser{
		{Store: StoreRoster, User: roster.User{RadioID: 2002, Callsign: "KX1BB", FirstName: "Bob", State: "NM"}},
		{Store: StoreTalkGroup, User: roster.User{RadioID: 3003}},
	}, users)

	runs, err = h.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestOpenIsIdempotent(t *testing.T) {
	sqlite, err := configlibsql.Struct{File: ":memory:"}.OpenDB()
	require.NoError(t, err)
	defer sqlite.Close()

	_, err = Open(context.Background(), sqlite)
	require.NoError(t, err)
	_, err = Open(context.Background(), sqlite)
	require.NoError(t, err)
}

func TestOpenDBRequiresTarget(t *testing.T) {
	_, err := configlibsql.Struct{}.OpenDB()
	require.Error(t, err)
}
