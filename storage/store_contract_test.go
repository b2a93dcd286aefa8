package storage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/form-intake-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stepClock returns a clock that advances by one minute on every call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Minute)
		return current
	}
}

func newTestSubmission(endpoint, data string) *interfaces.NewSubmission {
	return &interfaces.NewSubmission{
		EndpointName: endpoint,
		Data:         json.RawMessage(data),
		BrowserInfo: interfaces.BrowserInfo{
			interfaces.BrowserInfoUserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Safari/604.1",
			interfaces.BrowserInfoIPAddress: "203.0.113.7",
			interfaces.BrowserInfoCountry:   "DE",
		},
		IPAddress: "203.0.113.7",
	}
}

// runStoreContract exercises the behavior every interfaces.Store must share.
func runStoreContract(t *testing.T, store interfaces.Store) {
	ctx := context.Background()

	first, err := store.CreateSubmission(ctx, newTestSubmission("contact", `{"name":"Jane","email":"jane@example.com"}`))
	require.NoError(t, err)
	second, err := store.CreateSubmission(ctx, newTestSubmission("newsletter", `{"email":"bob@example.com"}`))
	require.NoError(t, err)
	third, err := store.CreateSubmission(ctx, newTestSubmission("contact", `{"name":"Ann","count":3}`))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, third.ID)
	assert.True(t, third.CreatedAt.After(first.CreatedAt))

	t.Run("get round trips data and browser info", func(t *testing.T) {
		got, err := store.GetSubmission(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "contact", got.EndpointName)
		assert.JSONEq(t, `{"name":"Jane","email":"jane@example.com"}`, string(got.Data))
		assert.Equal(t, "203.0.113.7", got.IPAddress)
		assert.Equal(t, "DE", got.BrowserInfo.Get(interfaces.BrowserInfoCountry))
		assert.True(t, got.CreatedAt.Equal(first.CreatedAt))
	})

	t.Run("get unknown id", func(t *testing.T) {
		_, err := store.GetSubmission(ctx, "does-not-exist")
		assert.ErrorIs(t, err, interfaces.ErrSubmissionNotFound)
	})

	t.Run("list by endpoint newest first", func(t *testing.T) {
		subs, total, err := store.ListSubmissions(ctx, interfaces.SubmissionQuery{Endpoint: "contact"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, subs, 2)
		assert.Equal(t, third.ID, subs[0].ID)
		assert.Equal(t, first.ID, subs[1].ID)
	})

	t.Run("list all paginated", func(t *testing.T) {
		subs, total, err := store.ListSubmissions(ctx, interfaces.SubmissionQuery{Endpoint: interfaces.AllEndpoints, Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, subs, 1)
		assert.Equal(t, second.ID, subs[0].ID)
	})

	t.Run("offset past the end", func(t *testing.T) {
		subs, total, err := store.ListSubmissions(ctx, interfaces.SubmissionQuery{Offset: 10})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Empty(t, subs)
	})

	t.Run("search matches values case-insensitively", func(t *testing.T) {
		subs, total, err := store.ListSubmissions(ctx, interfaces.SubmissionQuery{Search: "JANE"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, subs, 1)
		assert.Equal(t, first.ID, subs[0].ID)

		// keys are not searched
		_, total, err = store.ListSubmissions(ctx, interfaces.SubmissionQuery{Search: "email", Endpoint: "newsletter"})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})

	t.Run("submissions since", func(t *testing.T) {
		subs, err := store.SubmissionsSince(ctx, second.CreatedAt)
		require.NoError(t, err)
		require.Len(t, subs, 2)
		assert.Equal(t, second.ID, subs[0].ID)
		assert.Equal(t, third.ID, subs[1].ID)
	})

	t.Run("endpoint stats", func(t *testing.T) {
		stats, err := store.EndpointStats(ctx)
		require.NoError(t, err)
		require.Len(t, stats, 2)
		assert.Equal(t, "contact", stats[0].EndpointName)
		assert.Equal(t, 2, stats[0].Count)
		assert.True(t, stats[0].LatestSubmissionAt.Equal(third.CreatedAt))
		assert.Equal(t, "newsletter", stats[1].EndpointName)
		assert.Equal(t, 1, stats[1].Count)
	})

	t.Run("endpoint views upsert", func(t *testing.T) {
		views, err := store.EndpointViews(ctx, "admin")
		require.NoError(t, err)
		assert.Empty(t, views)

		firstView := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		secondView := firstView.Add(time.Hour)
		require.NoError(t, store.UpsertEndpointView(ctx, "contact", "admin", firstView))
		require.NoError(t, store.UpsertEndpointView(ctx, "contact", "admin", secondView))
		require.NoError(t, store.UpsertEndpointView(ctx, "contact", "other", firstView))

		views, err = store.EndpointViews(ctx, "admin")
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.True(t, views["contact"].Equal(secondView))
	})

	t.Run("concurrent endpoint view upserts keep one marker", func(t *testing.T) {
		base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		const writers = 16

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- store.UpsertEndpointView(ctx, "newsletter", "racer", base.Add(time.Duration(i)*time.Minute))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		views, err := store.EndpointViews(ctx, "racer")
		require.NoError(t, err)
		require.Len(t, views, 1)
		at := views["newsletter"]
		assert.False(t, at.Before(base))
		assert.True(t, at.Before(base.Add(writers*time.Minute)))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.DeleteSubmission(ctx, second.ID))
		_, err := store.GetSubmission(ctx, second.ID)
		assert.ErrorIs(t, err, interfaces.ErrSubmissionNotFound)
		assert.ErrorIs(t, store.DeleteSubmission(ctx, second.ID), interfaces.ErrSubmissionNotFound)

		_, total, err := store.ListSubmissions(ctx, interfaces.SubmissionQuery{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})

	require.NoError(t, store.Ping(ctx))
}
