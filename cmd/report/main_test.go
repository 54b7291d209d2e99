package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportDay(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC)

	day, err := reportDay("", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), day)

	day, err = reportDay("2024-01-15", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), day)

	_, err = reportDay("15/01/2024", now)
	assert.Error(t, err)
}
