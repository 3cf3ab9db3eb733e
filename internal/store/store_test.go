package store

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
)

func TestErrorfMarksBackendFailures(t *testing.T) {
	err := Errorf("failed to query reports: %w", sql.ErrConnDone)

	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Equal(t, "failed to query reports: sql: connection is already closed", err.Error())
	assert.False(t, apperr.IsNotFound(err))

	assert.NotErrorIs(t, apperr.NotFound("report", "r-1"), ErrBackend)
	assert.NotErrorIs(t, errors.New("plain"), ErrBackend)
}

func TestPageNormalize(t *testing.T) {
	tests := []struct {
		in, want Page
	}{
		{Page{}, Page{Limit: DefaultLimit}},
		{Page{Limit: MaxLimit + 1, Offset: -3}, Page{Limit: MaxLimit}},
		{Page{Limit: 5, Offset: 10}, Page{Limit: 5, Offset: 10}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.Normalize())
	}
}
