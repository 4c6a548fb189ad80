package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
)

func seedSubscribers(t *testing.T, repo SubscriberRepository) {
	t.Helper()
	ctx := t.Context()
	require.NoError(t, repo.CreateSubscriber(ctx, &entities.Subscriber{UserID: "u-ops", Name: "Ops", Email: "ops@example.com", ChatID: "-100", Active: true}))
	require.NoError(t, repo.CreateSubscriber(ctx, &entities.Subscriber{UserID: "u-guard", Name: "Guard", Email: "guard@example.com", Active: true}))
	require.NoError(t, repo.CreateSubscriber(ctx, &entities.Subscriber{UserID: "u-gone", Name: "Gone", Email: "gone@example.com", Active: false}))

	require.NoError(t, repo.Subscribe(ctx, "u-ops", "environment"))
	require.NoError(t, repo.Subscribe(ctx, "u-ops", "security"))
	require.NoError(t, repo.Subscribe(ctx, "u-guard", "security"))
	require.NoError(t, repo.Subscribe(ctx, "u-gone", "security"))

	require.NoError(t, repo.RegisterPushToken(ctx, &entities.PushRegistration{UserID: "u-ops", Token: "tok-a", Platform: "android"}))
	require.NoError(t, repo.RegisterPushToken(ctx, &entities.PushRegistration{UserID: "u-ops", Token: "tok-b", Platform: "ios"}))
}

func TestSubscriberRepository_ListSubscribers(t *testing.T) {
	repo := NewSubscriberRepository(setupRepoTestDB(t))
	seedSubscribers(t, repo)

	ids, err := repo.ListSubscribers(t.Context(), "security")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-guard", "u-ops"}, ids)

	ids, err = repo.ListSubscribers(t.Context(), "environment")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-ops"}, ids)

	ids, err = repo.ListSubscribers(t.Context(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSubscriberRepository_SubscribeTwiceIsNoop(t *testing.T) {
	repo := NewSubscriberRepository(setupRepoTestDB(t))
	seedSubscribers(t, repo)

	require.NoError(t, repo.Subscribe(t.Context(), "u-ops", "environment"))
	ids, err := repo.ListSubscribers(t.Context(), "environment")
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	assert.ErrorIs(t, repo.Subscribe(t.Context(), "nobody", "environment"), ErrSubscriberNotFound)
}

func TestSubscriberRepository_ResolveContactInfo(t *testing.T) {
	repo := NewSubscriberRepository(setupRepoTestDB(t))
	seedSubscribers(t, repo)

	contacts, err := repo.ResolveContactInfo(t.Context(), []string{"u-ops", "u-guard", "u-gone", "unknown"})
	require.NoError(t, err)
	require.Len(t, contacts, 2, "inactive and unknown users are skipped")

	assert.Equal(t, "u-guard", contacts[0].UserID)
	assert.Empty(t, contacts[0].PushTokens)
	assert.Equal(t, "u-ops", contacts[1].UserID)
	assert.Equal(t, "ops@example.com", contacts[1].Email)
	assert.Equal(t, "-100", contacts[1].ChatID)
	assert.Equal(t, []string{"tok-a", "tok-b"}, contacts[1].PushTokens)

	contacts, err = repo.ResolveContactInfo(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestSubscriberRepository_DeletePushRegistration(t *testing.T) {
	repo := NewSubscriberRepository(setupRepoTestDB(t))
	seedSubscribers(t, repo)

	owner, err := repo.DeletePushRegistration(t.Context(), "tok-a")
	require.NoError(t, err)
	assert.Equal(t, "u-ops", owner)

	owner, err = repo.DeletePushRegistration(t.Context(), "tok-a")
	require.NoError(t, err)
	assert.Empty(t, owner)

	contacts, err := repo.ResolveContactInfo(t.Context(), []string{"u-ops"})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, []string{"tok-b"}, contacts[0].PushTokens)
}

func TestSubscriberRepository_RegisterPushTokenMovesOwner(t *testing.T) {
	repo := NewSubscriberRepository(setupRepoTestDB(t))
	seedSubscribers(t, repo)

	require.NoError(t, repo.RegisterPushToken(t.Context(), &entities.PushRegistration{UserID: "u-guard", Token: "tok-b", Platform: "ios"}))

	contacts, err := repo.ResolveContactInfo(t.Context(), []string{"u-guard"})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, []string{"tok-b"}, contacts[0].PushTokens)
}

func TestSubscriberRepository_ChildRowsFollowSubscriber(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewSubscriberRepository(db)
	seedSubscribers(t, repo)

	require.Error(t, repo.RegisterPushToken(t.Context(), &entities.PushRegistration{UserID: "nobody", Token: "tok-x"}),
		"push tokens need an existing subscriber")

	require.NoError(t, db.Delete(&entities.Subscriber{UserID: "u-ops"}).Error)

	var subs, regs int64
	require.NoError(t, db.Model(&entities.Subscription{}).Where("user_id = ?", "u-ops").Count(&subs).Error)
	require.NoError(t, db.Model(&entities.PushRegistration{}).Where("user_id = ?", "u-ops").Count(&regs).Error)
	assert.Zero(t, subs)
	assert.Zero(t, regs)

	ids, err := repo.ListSubscribers(t.Context(), "security")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-guard"}, ids)
}
