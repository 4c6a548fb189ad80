package notification

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
	fcm "google.golang.org/api/fcm/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/gudangguard/sentinel/internal/conf"
	"github.com/gudangguard/sentinel/internal/errors"
)

// ErrStaleRegistration marks a push token the provider no longer accepts.
var ErrStaleRegistration = errors.NewStd("push registration is stale")

// PushSender delivers one push notification to one registered device.
type PushSender interface {
	Send(ctx context.Context, token string, content PushContent) error
}

// FCMSender sends push notifications through the Firebase Cloud Messaging
// HTTP v1 API.
type FCMSender struct {
	svc       *fcm.Service
	projectID string
	limiter   *rate.Limiter
}

// NewFCMSender creates an FCM sender. A non-nil httpClient replaces the
// default authenticated client, which is how tests inject a mock transport.
func NewFCMSender(ctx context.Context, settings conf.PushSettings, httpClient *http.Client) (*FCMSender, error) {
	var opts []option.ClientOption
	switch {
	case httpClient != nil:
		opts = append(opts, option.WithHTTPClient(httpClient))
	case settings.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(settings.CredentialsFile))
	}
	if settings.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(settings.Endpoint))
	}

	svc, err := fcm.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.New(fmt.Errorf("create fcm service: %w", err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	limit := rate.Inf
	if settings.RatePerSecond > 0 {
		limit = rate.Limit(settings.RatePerSecond)
	}
	burst := max(settings.Burst, 1)

	return &FCMSender{
		svc:       svc,
		projectID: settings.ProjectID,
		limiter:   rate.NewLimiter(limit, burst),
	}, nil
}

// Send delivers to a single token. Tokens the provider reports as unknown
// return an error wrapping ErrStaleRegistration.
func (s *FCMSender) Send(ctx context.Context, token string, content PushContent) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("push rate limit: %w", err)
	}

	msg := &fcm.Message{
		Token: token,
		Notification: &fcm.Notification{
			Title: content.Title,
			Body:  content.Body,
			Image: content.ImageURL,
		},
		Data: content.Data,
	}
	_, err := s.svc.Projects.Messages.
		Send("projects/"+s.projectID, &fcm.SendMessageRequest{Message: msg}).
		Context(ctx).
		Do()
	if err == nil {
		return nil
	}
	if isStaleTokenError(err) {
		return fmt.Errorf("%w: %w", ErrStaleRegistration, err)
	}
	return fmt.Errorf("fcm send: %w", err)
}

// isStaleTokenError recognizes FCM's UNREGISTERED and not-found responses.
func isStaleTokenError(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusNotFound {
		return true
	}
	body := apiErr.Body + apiErr.Message
	return strings.Contains(body, "UNREGISTERED") ||
		strings.Contains(body, "registration-token-not-registered")
}
