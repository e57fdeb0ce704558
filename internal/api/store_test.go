package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/comparaholic/internal/services"
)

func TestMemoryStoreRevivesSoftDeletedAccountRow(t *testing.T) {
	s := newMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertAccountSubmission(ctx, &services.Submission{ID: "a1", AccountID: "acct-1", Category: services.CategoryBankFees, Answers: services.FormState{"bank": "TD"}, CreatedAt: t0, UpdatedAt: t0}))

	ok, err := s.InsertAccountSubmissionIfAbsent(ctx, &services.Submission{ID: "a2", AccountID: "acct-1", Category: services.CategoryBankFees, Answers: services.FormState{"bank": "BMO"}, CreatedAt: t0, UpdatedAt: t0})
	require.NoError(t, err)
	assert.False(t, ok, "live row must not be overwritten")

	ok, err = s.SoftDeleteSubmission(ctx, services.SourceAccount, "a1")
	require.NoError(t, err)
	require.True(t, ok)

	later := t0.Add(time.Hour)
	ok, err = s.InsertAccountSubmissionIfAbsent(ctx, &services.Submission{ID: "a3", AccountID: "acct-1", Category: services.CategoryBankFees, Answers: services.FormState{"bank": "RBC"}, CreatedAt: later, UpdatedAt: later})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetAccountSubmission(ctx, "acct-1", services.CategoryBankFees)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "RBC", got.Answers["bank"])
	assert.True(t, got.UpdatedAt.Equal(later))
}
