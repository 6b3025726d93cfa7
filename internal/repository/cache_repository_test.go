package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	appErrors "github.com/uniplan/timetable-api/pkg/errors"
)

type cacheMetricsRecorder struct {
	hits   int
	misses int
}

func (r *cacheMetricsRecorder) RecordCacheOperation(hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func TestCacheRepositoryCountsMisses(t *testing.T) {
	recorder := &cacheMetricsRecorder{}
	repo := NewCacheRepository(nil, recorder, nil)

	var dest map[string]string
	err := repo.Get(context.Background(), GridKey("sem-1"), &dest)
	require.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	require.Equal(t, 1, recorder.misses)
	require.Zero(t, recorder.hits)
}

func TestCacheRepositoryNilMetricsIsSafe(t *testing.T) {
	repo := NewCacheRepository(nil, nil, nil)

	var dest map[string]string
	err := repo.Get(context.Background(), GridKey("sem-1"), &dest)
	require.True(t, errors.Is(err, appErrors.ErrCacheMiss))
}
