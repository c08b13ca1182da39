package notify

import (
	"context"
	"errors"
	"testing"

	"postly/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ClassifiesThroughTaxonomy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := &Recorder{}

	Error(ctx, rec, models.NewValidationError("", []models.FieldError{{Field: "title", Message: "too short"}}))
	Error(ctx, rec, errors.New("boom"))
	Error(ctx, rec, nil)

	errs := rec.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, models.CodeValidation, errs[0].Code)
	assert.Equal(t, "too short", errs[0].Message)
	assert.Len(t, errs[0].Fields, 1)
	assert.Equal(t, models.CodeNetworkOrServer, errs[1].Code)
}

func TestSuccess_DropsEmptyMessages(t *testing.T) {
	t.Parallel()
	rec := &Recorder{}

	Success(context.Background(), rec, "")
	Success(context.Background(), rec, "Blog post archived")

	all := rec.All()
	require.Len(t, all, 1)
	assert.Equal(t, LevelSuccess, all[0].Level)
	assert.Empty(t, rec.Errors())
}
