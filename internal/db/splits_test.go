package db

import (
	"context"
	"testing"
	"time"

	"splitcoord/internal/amount"
	"splitcoord/internal/db/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseAmount(t *testing.T, s string) amount.Amount {
	t.Helper()
	a, err := amount.Parse(s)
	require.NoError(t, err)
	return a
}

func newTestSplit(t *testing.T) (*DB, *Split) {
	t.Helper()
	testDB := testutil.NewTestDB(t)
	t.Cleanup(func() { testDB.Close(t) })
	db := &DB{pool: testDB.Pool}

	split := &Split{
		ChainID:     534352,
		Contract:    "0x1111111111111111111111111111111111111111",
		Payer:       "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Token:       "0x2222222222222222222222222222222222222222",
		TotalAmount: mustParseAmount(t, "1000"),
	}
	legs := []SplitParticipant{
		{Participant: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Amount: mustParseAmount(t, "600")},
		{Participant: "0xcccccccccccccccccccccccccccccccccccccccc", Amount: mustParseAmount(t, "400")},
	}
	_, err := db.CreateSplit(context.Background(), split, legs)
	require.NoError(t, err)
	return db, split
}

func TestCreateAndGetSplit(t *testing.T) {
	db, split := newTestSplit(t)
	ctx := context.Background()

	detail, err := db.GetSplit(ctx, split.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000", detail.Split.TotalAmount.String())
	assert.Len(t, detail.Participants, 2)
	assert.Nil(t, detail.Split.SplitIDOnchain)
	assert.False(t, detail.Split.Settled)
}

func TestSetSplitOnchainIDRejectsDoubleSet(t *testing.T) {
	db, split := newTestSplit(t)
	ctx := context.Background()

	err := db.SetSplitOnchainID(ctx, split.ID, mustParseAmount(t, "42"), "0xdeadbeef")
	require.NoError(t, err)

	detail, err := db.GetSplit(ctx, split.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Split.SplitIDOnchain)
	assert.Equal(t, "42", detail.Split.SplitIDOnchain.String())

	err = db.SetSplitOnchainID(ctx, split.ID, mustParseAmount(t, "43"), "0xdeadbeef")
	assert.Error(t, err)
}

func TestMarkSettledIsNotIdempotent(t *testing.T) {
	db, split := newTestSplit(t)
	ctx := context.Background()

	require.NoError(t, db.MarkSettled(ctx, split.ID))

	detail, err := db.GetSplit(ctx, split.ID)
	require.NoError(t, err)
	assert.True(t, detail.Split.Settled)

	err = db.MarkSettled(ctx, split.ID)
	assert.Error(t, err)
}

func TestListOrphanCreatesOnlyReturnsUnresolvedRows(t *testing.T) {
	db, split := newTestSplit(t)
	ctx := context.Background()

	orphans, err := db.ListOrphanCreates(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	require.NoError(t, db.SetSplitCreateTxHash(ctx, split.ID, "0xfeedface"))

	orphans, err = db.ListOrphanCreates(ctx, 50)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, split.ID, orphans[0].ID)

	require.NoError(t, db.SetSplitOnchainID(ctx, split.ID, mustParseAmount(t, "7"), "0xfeedface"))

	orphans, err = db.ListOrphanCreates(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestMarkParticipantApprovedIsOnceOnly(t *testing.T) {
	db, split := newTestSplit(t)
	ctx := context.Background()
	participant := "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	require.NoError(t, db.MarkParticipantApproved(ctx, split.ID, participant))

	detail, err := db.GetSplit(ctx, split.ID)
	require.NoError(t, err)
	var found bool
	var first *time.Time
	for _, p := range detail.Participants {
		if p.Participant == participant {
			found = true
			assert.NotNil(t, p.ApprovedOffchainAt)
			first = p.ApprovedOffchainAt
		}
	}
	assert.True(t, found)
	require.NotNil(t, first)

	// A second mark must not move the first approval timestamp.
	require.NoError(t, db.MarkParticipantApproved(ctx, split.ID, participant))

	detail, err = db.GetSplit(ctx, split.ID)
	require.NoError(t, err)
	for _, p := range detail.Participants {
		if p.Participant == participant {
			require.NotNil(t, p.ApprovedOffchainAt)
			assert.True(t, first.Equal(*p.ApprovedOffchainAt))
		}
	}
}

func TestDeleteSplitCascadesParticipants(t *testing.T) {
	db, split := newTestSplit(t)
	ctx := context.Background()

	require.NoError(t, db.DeleteSplit(ctx, split.ID))

	_, err := db.GetSplit(ctx, split.ID)
	assert.Error(t, err)

	var legs int
	require.NoError(t, db.pool.QueryRow(ctx,
		`SELECT count(*) FROM split_participants WHERE split_id = $1`, split.ID).Scan(&legs))
	assert.Equal(t, 0, legs)
}
