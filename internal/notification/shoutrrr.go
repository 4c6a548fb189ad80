package notification

import (
	"context"
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/gudangguard/sentinel/internal/errors"
)

// EmailSender delivers one email to one recipient.
type EmailSender interface {
	Send(ctx context.Context, to string, content EmailContent) error
}

// ChatSender posts one message to the operational group chat.
type ChatSender interface {
	Send(ctx context.Context, text string) error
}

// shoutrrrRouter is the part of the shoutrrr router we call.
type shoutrrrRouter interface {
	Send(message string, params *types.Params) []error
}

func newRouter(url, channel string) (shoutrrrRouter, error) {
	router, err := shoutrrr.CreateSender(url)
	if err != nil {
		return nil, errors.New(fmt.Errorf("create %s sender: %w", channel, err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("channel", channel).
			Build()
	}
	return router, nil
}

// sendWithContext runs a blocking shoutrrr send and gives up when ctx ends.
// The underlying send keeps its own transport timeout.
func sendWithContext(ctx context.Context, r shoutrrrRouter, message string, params *types.Params) error {
	done := make(chan error, 1)
	go func() {
		done <- errors.Join(r.Send(message, params)...)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShoutrrrEmailSender sends email through a shoutrrr smtp:// URL. The
// recipient and subject are set per message; the plain-text part is sent.
type ShoutrrrEmailSender struct {
	router shoutrrrRouter
}

// NewShoutrrrEmailSender creates an email sender from an smtp:// URL.
func NewShoutrrrEmailSender(url string) (*ShoutrrrEmailSender, error) {
	r, err := newRouter(url, ChannelEmail)
	if err != nil {
		return nil, err
	}
	return &ShoutrrrEmailSender{router: r}, nil
}

// Send delivers content to a single address.
func (s *ShoutrrrEmailSender) Send(ctx context.Context, to string, content EmailContent) error {
	params := types.Params{
		"toaddresses": to,
		"subject":     content.Subject,
	}
	if err := sendWithContext(ctx, s.router, content.Text, &params); err != nil {
		return fmt.Errorf("email to %s: %w", to, err)
	}
	return nil
}

// ShoutrrrChatSender posts to a fixed chat channel (telegram://, ntfy://,
// slack:// or any other shoutrrr service URL).
type ShoutrrrChatSender struct {
	router shoutrrrRouter
}

// NewShoutrrrChatSender creates a chat sender from a shoutrrr URL.
func NewShoutrrrChatSender(url string) (*ShoutrrrChatSender, error) {
	r, err := newRouter(url, ChannelChat)
	if err != nil {
		return nil, err
	}
	return &ShoutrrrChatSender{router: r}, nil
}

// Send posts text to the configured channel.
func (s *ShoutrrrChatSender) Send(ctx context.Context, text string) error {
	if err := sendWithContext(ctx, s.router, text, nil); err != nil {
		return fmt.Errorf("chat message: %w", err)
	}
	return nil
}
