package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexmatch/models"
	"hexmatch/utils/errors"
)

type fakeLikeStore struct {
	likes map[[2]string]bool
	err   error
	calls int
}

func (f *fakeLikeStore) RecordLike(ctx context.Context, ownerID, targetID string) (bool, bool, error) {
	f.calls++
	if f.err != nil {
		return false, false, f.err
	}
	key := [2]string{ownerID, targetID}
	if f.likes[key] {
		return false, false, nil
	}
	f.likes[key] = true
	return true, f.likes[[2]string{targetID, ownerID}], nil
}

type fakeUserDirectory struct {
	users map[string]models.User
}

func (f *fakeUserDirectory) GetUser(ctx context.Context, publicID string) (models.User, error) {
	user, ok := f.users[publicID]
	if !ok {
		return models.User{}, errors.ErrNotFound
	}
	return user, nil
}

type fakeNotifier struct {
	notified [][2]string
	err      error
}

func (f *fakeNotifier) NotifyMatch(ctx context.Context, a, b models.User) error {
	f.notified = append(f.notified, [2]string{a.PublicID, b.PublicID})
	return f.err
}

func TestMatchServiceLike(t *testing.T) {
	ctx := context.Background()

	alice := models.User{PublicID: "alice", FirstName: "Alice"}
	bob := models.User{PublicID: "bob", FirstName: "Bob"}

	setup := func() (*fakeLikeStore, *fakeUserDirectory, *fakeNotifier, *MatchService) {
		store := &fakeLikeStore{likes: map[[2]string]bool{}}
		directory := &fakeUserDirectory{users: map[string]models.User{
			"alice": alice,
			"bob":   bob,
		}}
		notifier := &fakeNotifier{}
		return store, directory, notifier, NewMatchService(store, directory, notifier)
	}

	t.Run("self like is a no-op", func(t *testing.T) {
		store, _, notifier, service := setup()

		acted, err := service.Like(ctx, "alice", "alice")
		require.NoError(t, err)
		assert.False(t, acted)
		assert.Zero(t, store.calls)
		assert.Empty(t, notifier.notified)
	})

	t.Run("unknown target fails before anything is stored", func(t *testing.T) {
		store, _, _, service := setup()

		_, err := service.Like(ctx, "alice", "ghost")
		assert.ErrorIs(t, err, errors.ErrNotFound)
		assert.Zero(t, store.calls)
	})

	t.Run("one-way like records without notifying", func(t *testing.T) {
		_, _, notifier, service := setup()

		acted, err := service.Like(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.True(t, acted)
		assert.Empty(t, notifier.notified)
	})

	t.Run("mutual like notifies both sides once", func(t *testing.T) {
		_, _, notifier, service := setup()

		_, err := service.Like(ctx, "alice", "bob")
		require.NoError(t, err)

		acted, err := service.Like(ctx, "bob", "alice")
		require.NoError(t, err)
		assert.True(t, acted)
		require.Len(t, notifier.notified, 1)
		assert.Equal(t, [2]string{"bob", "alice"}, notifier.notified[0])
	})

	t.Run("repeated like after a match stays quiet", func(t *testing.T) {
		_, _, notifier, service := setup()

		_, err := service.Like(ctx, "alice", "bob")
		require.NoError(t, err)
		_, err = service.Like(ctx, "bob", "alice")
		require.NoError(t, err)
		require.Len(t, notifier.notified, 1)

		// The repeat still reads as recorded, but no new notification
		// may go out for an already matched pair.
		acted, err := service.Like(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.True(t, acted)
		assert.Len(t, notifier.notified, 1)
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		store, _, notifier, service := setup()
		store.err = errors.ErrUnavailable

		_, err := service.Like(ctx, "alice", "bob")
		assert.ErrorIs(t, err, errors.ErrUnavailable)
		assert.Empty(t, notifier.notified)
	})

	t.Run("lost notification does not fail the like", func(t *testing.T) {
		_, _, notifier, service := setup()
		notifier.err = errors.ErrUnavailable

		_, err := service.Like(ctx, "alice", "bob")
		require.NoError(t, err)

		acted, err := service.Like(ctx, "bob", "alice")
		require.NoError(t, err)
		assert.True(t, acted)
	})
}
