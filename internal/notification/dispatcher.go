package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gudangguard/sentinel/internal/datastore/repository"
	"github.com/gudangguard/sentinel/internal/errors"
	"github.com/gudangguard/sentinel/internal/logger"
	"github.com/gudangguard/sentinel/internal/observability/metrics"
)

const (
	defaultDispatchTimeout = 10 * time.Second
	// deliveryConcurrency bounds in-flight sends per channel.
	deliveryConcurrency = 8
)

// ErrNothingDelivered is returned when delivery was attempted on at least
// one channel and every attempt failed.
var ErrNothingDelivered = errors.NewStd("notification not delivered on any channel")

// Report summarizes one dispatch.
type Report struct {
	Recipients   int
	PushSent     int
	PushFailed   int
	StaleRemoved int
	EmailSent    int
	EmailFailed  int
	ChatSent     bool
	ChatFailed   bool
}

// Delivered is the number of successful deliveries across channels.
func (r Report) Delivered() int {
	n := r.PushSent + r.EmailSent
	if r.ChatSent {
		n++
	}
	return n
}

// Attempted reports whether any channel tried to deliver.
func (r Report) Attempted() bool {
	return r.Delivered() > 0 || r.PushFailed > 0 || r.StaleRemoved > 0 || r.EmailFailed > 0 || r.ChatFailed
}

// Dispatcher fans a message out over push, email and chat concurrently.
// A failure on one channel never stops or delays the others.
type Dispatcher struct {
	contacts *contactCache
	dir      Directory
	push     PushSender
	email    EmailSender
	chat     ChatSender
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      logger.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPush enables the push channel.
func WithPush(s PushSender) Option { return func(d *Dispatcher) { d.push = s } }

// WithEmail enables the email channel.
func WithEmail(s EmailSender) Option { return func(d *Dispatcher) { d.email = s } }

// WithChat enables the group chat channel.
func WithChat(s ChatSender) Option { return func(d *Dispatcher) { d.chat = s } }

// WithMetrics records delivery counters.
func WithMetrics(m *metrics.Metrics) Option { return func(d *Dispatcher) { d.metrics = m } }

// WithTimeout bounds a whole dispatch.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithContactCacheTTL caches resolved contacts for ttl.
func WithContactCacheTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) { d.contacts = newContactCache(d.dir, ttl) }
}

// NewDispatcher creates a dispatcher. Channels without a sender are skipped.
func NewDispatcher(dir Directory, log logger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		dir:      dir,
		contacts: newContactCache(dir, 0),
		timeout:  defaultDispatchTimeout,
		log:      log.Module("notification"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify sends msg to every subscriber of systemType and to the chat channel.
func (d *Dispatcher) Notify(ctx context.Context, systemType string, msg Message) (Report, error) {
	recipients, err := d.dir.ListSubscribers(ctx, systemType)
	if err != nil {
		// chat does not depend on subscribers, so keep going
		d.log.Error("failed to list subscribers",
			logger.String("system_type", systemType),
			logger.Error(err))
	}
	return d.Dispatch(ctx, recipients, msg)
}

// Dispatch resolves recipients and delivers msg on all channels, waiting
// for every channel to finish. It returns ErrNothingDelivered only when
// something was attempted and nothing succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []string, msg Message) (Report, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	contacts, err := d.contacts.resolve(ctx, recipients)
	if err != nil {
		d.log.Error("failed to resolve contacts",
			logger.Int("recipients", len(recipients)),
			logger.Error(err))
		contacts = nil
	}

	var (
		g           errgroup.Group
		pushReport  Report
		emailReport Report
		chatReport  Report
	)
	if d.push != nil {
		g.Go(func() error {
			pushReport = d.sendPush(ctx, contacts, msg)
			return nil
		})
	}
	if d.email != nil {
		g.Go(func() error {
			emailReport = d.sendEmail(ctx, contacts, msg)
			return nil
		})
	}
	if d.chat != nil {
		g.Go(func() error {
			chatReport = d.sendChat(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Recipients:   len(contacts),
		PushSent:     pushReport.PushSent,
		PushFailed:   pushReport.PushFailed,
		StaleRemoved: pushReport.StaleRemoved,
		EmailSent:    emailReport.EmailSent,
		EmailFailed:  emailReport.EmailFailed,
		ChatSent:     chatReport.ChatSent,
		ChatFailed:   chatReport.ChatFailed,
	}

	if !report.Attempted() {
		d.log.Warn("notification had no deliverable target",
			logger.String("kind", string(msg.Kind)),
			logger.Int("recipients", len(recipients)))
		return report, nil
	}
	if report.Delivered() == 0 {
		return report, errors.New(fmt.Errorf("%w (%s)", ErrNothingDelivered, msg.Kind)).
			Component("notification").
			Category(errors.CategoryDispatch).
			Context("kind", string(msg.Kind)).
			Build()
	}
	d.log.Debug("notification dispatched",
		logger.String("kind", string(msg.Kind)),
		logger.Int("push", report.PushSent),
		logger.Int("email", report.EmailSent),
		logger.Bool("chat", report.ChatSent))
	return report, nil
}

func (d *Dispatcher) sendPush(ctx context.Context, contacts []repository.ContactInfo, msg Message) Report {
	var (
		mu sync.Mutex
		r  Report
		g  errgroup.Group
	)
	g.SetLimit(deliveryConcurrency)
	for i := range contacts {
		c := &contacts[i]
		for _, token := range c.PushTokens {
			g.Go(func() error {
				err := d.push.Send(ctx, token, msg.Push)
				switch {
				case err == nil:
					mu.Lock()
					r.PushSent++
					mu.Unlock()
					d.metrics.RecordDelivery(ChannelPush, "success")
				case errors.Is(err, ErrStaleRegistration):
					mu.Lock()
					r.StaleRemoved++
					mu.Unlock()
					d.metrics.RecordDelivery(ChannelPush, "stale")
					d.removeStaleToken(ctx, c.UserID, token)
				default:
					mu.Lock()
					r.PushFailed++
					mu.Unlock()
					d.metrics.RecordDelivery(ChannelPush, "error")
					d.log.Warn("push delivery failed",
						logger.String("channel", ChannelPush),
						logger.String("user_id", c.UserID),
						logger.Time("at", time.Now()),
						logger.Error(err))
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return r
}

func (d *Dispatcher) removeStaleToken(ctx context.Context, userID, token string) {
	owner, err := d.dir.DeletePushRegistration(ctx, token)
	if err != nil {
		d.log.Error("failed to delete stale push registration",
			logger.String("user_id", userID),
			logger.Error(err))
		return
	}
	if owner == "" {
		owner = userID
	}
	d.contacts.invalidate(owner)
	d.log.Info("deleted stale push registration", logger.String("user_id", owner))
}

func (d *Dispatcher) sendEmail(ctx context.Context, contacts []repository.ContactInfo, msg Message) Report {
	var (
		mu sync.Mutex
		r  Report
		g  errgroup.Group
	)
	g.SetLimit(deliveryConcurrency)
	for i := range contacts {
		c := &contacts[i]
		if c.Email == "" {
			continue
		}
		g.Go(func() error {
			if err := d.email.Send(ctx, c.Email, msg.Email); err != nil {
				mu.Lock()
				r.EmailFailed++
				mu.Unlock()
				d.metrics.RecordDelivery(ChannelEmail, "error")
				d.log.Warn("email delivery failed",
					logger.String("channel", ChannelEmail),
					logger.String("user_id", c.UserID),
					logger.Time("at", time.Now()),
					logger.Error(err))
				return nil
			}
			mu.Lock()
			r.EmailSent++
			mu.Unlock()
			d.metrics.RecordDelivery(ChannelEmail, "success")
			return nil
		})
	}
	_ = g.Wait()
	return r
}

func (d *Dispatcher) sendChat(ctx context.Context, msg Message) Report {
	if msg.Chat.Text == "" {
		return Report{}
	}
	if err := d.chat.Send(ctx, msg.Chat.Text); err != nil {
		d.metrics.RecordDelivery(ChannelChat, "error")
		d.log.Warn("chat delivery failed",
			logger.String("channel", ChannelChat),
			logger.Time("at", time.Now()),
			logger.Error(err))
		return Report{ChatFailed: true}
	}
	d.metrics.RecordDelivery(ChannelChat, "success")
	return Report{ChatSent: true}
}
