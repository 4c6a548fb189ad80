//go:build integration

package notification_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gudangguard/sentinel/internal/datastore/repository"
	"github.com/gudangguard/sentinel/internal/logger"
	"github.com/gudangguard/sentinel/internal/notification"
	"github.com/gudangguard/sentinel/internal/testutil"
	"github.com/gudangguard/sentinel/internal/testutil/containers"
)

func startNtfy(t *testing.T, cfg *containers.NtfyConfig) *containers.NtfyContainer {
	t.Helper()
	c, err := containers.NewNtfyContainer(context.Background(), cfg)
	require.NoError(t, err, "failed to start ntfy container")
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })
	return c
}

func uniqueTopic(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

func TestChatSender_NtfyDelivery(t *testing.T) {
	c := startNtfy(t, nil)
	ctx := t.Context()
	topic := uniqueTopic("chat")

	sender, err := notification.NewShoutrrrChatSender(c.ChatURL(topic, nil))
	require.NoError(t, err)

	text := "Suhu 41.5°C > 40 di Gudang Cikarang / Cold Room 2 & kelembapan < 50%"
	require.NoError(t, sender.Send(ctx, text))

	messages, err := c.Messages(ctx, topic, nil)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, text, messages[0].Message)
}

func TestChatSender_NtfyAuth(t *testing.T) {
	creds := &containers.Credentials{Username: "sentinel", Password: "p@ss:w#rd!"}

	c := startNtfy(t, &containers.NtfyConfig{Auth: true})
	ctx := t.Context()
	topic := uniqueTopic("auth")
	require.NoError(t, c.AddUser(ctx, creds.Username, creds.Password))
	require.NoError(t, c.GrantAccess(ctx, creds.Username, topic, "rw"))

	t.Run("valid credentials", func(t *testing.T) {
		sender, err := notification.NewShoutrrrChatSender(c.ChatURL(topic, creds))
		require.NoError(t, err)
		require.NoError(t, sender.Send(ctx, "authenticated"))

		messages, err := c.Messages(ctx, topic, creds)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, "authenticated", messages[0].Message)
	})

	t.Run("wrong password", func(t *testing.T) {
		sender, err := notification.NewShoutrrrChatSender(c.ChatURL(topic, &containers.Credentials{Username: creds.Username, Password: "wrong"}))
		require.NoError(t, err)
		assert.Error(t, sender.Send(ctx, "denied"))
	})

	t.Run("anonymous denied", func(t *testing.T) {
		sender, err := notification.NewShoutrrrChatSender(c.ChatURL(topic, nil))
		require.NoError(t, err)
		assert.Error(t, sender.Send(ctx, "denied"))
	})
}

func TestDispatcher_RepeatEpisodeReachesChat(t *testing.T) {
	c := startNtfy(t, nil)
	ctx := t.Context()
	topic := uniqueTopic("repeat")

	chat, err := notification.NewShoutrrrChatSender(c.ChatURL(topic, nil))
	require.NoError(t, err)
	dir := repository.NewSubscriberRepository(testutil.NewTestDB(t))
	d := notification.NewDispatcher(dir, logger.NewNop(), notification.WithChat(chat))

	msg, err := notification.RenderRepeat(notification.RepeatPayload{
		WarehouseName:   "Gudang Cikarang",
		AreaName:        "Loading Dock",
		AttributesText:  "jaket hitam, topi merah",
		DetectionCount:  3,
		DurationMinutes: 9,
		FirstSeenText:   "01 Mar 2026 21:03",
		LastSeenText:    "01 Mar 2026 21:12",
	})
	require.NoError(t, err)

	report, err := d.Notify(ctx, "security", msg)
	require.NoError(t, err)
	assert.True(t, report.ChatSent)

	messages, err := c.Messages(ctx, topic, nil)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, msg.Chat.Text, messages[0].Message)
}
