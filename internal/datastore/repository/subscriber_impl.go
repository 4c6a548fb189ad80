package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gudangguard/sentinel/internal/datastore/entities"
	"github.com/gudangguard/sentinel/internal/errors"
)

// subscriberRepository implements SubscriberRepository.
type subscriberRepository struct {
	db *gorm.DB
}

// NewSubscriberRepository creates a new SubscriberRepository.
func NewSubscriberRepository(db *gorm.DB) SubscriberRepository {
	return &subscriberRepository{db: db}
}

// ListSubscribers returns active subscribers of a system type.
func (r *subscriberRepository) ListSubscribers(ctx context.Context, systemType string) ([]string, error) {
	var userIDs []string
	err := r.db.WithContext(ctx).
		Model(&entities.Subscription{}).
		Joins("JOIN subscribers ON subscribers.user_id = subscriptions.user_id").
		Where("subscriptions.system_type = ?", systemType).
		Where("subscribers.active = ?", true).
		Distinct().
		Order("subscriptions.user_id ASC").
		Pluck("subscriptions.user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers for %s: %w", systemType, err)
	}
	return userIDs, nil
}

// ResolveContactInfo loads contact details and push tokens.
func (r *subscriberRepository) ResolveContactInfo(ctx context.Context, userIDs []string) ([]ContactInfo, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	var subscribers []entities.Subscriber
	err := r.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Where("active = ?", true).
		Order("user_id ASC").
		Find(&subscribers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve contacts: %w", err)
	}

	var regs []entities.PushRegistration
	if err := r.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("id ASC").
		Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("failed to load push registrations: %w", err)
	}
	tokens := make(map[string][]string, len(subscribers))
	for i := range regs {
		tokens[regs[i].UserID] = append(tokens[regs[i].UserID], regs[i].Token)
	}

	contacts := make([]ContactInfo, 0, len(subscribers))
	for i := range subscribers {
		s := &subscribers[i]
		contacts = append(contacts, ContactInfo{
			UserID:     s.UserID,
			Name:       s.Name,
			Email:      s.Email,
			ChatID:     s.ChatID,
			PushTokens: tokens[s.UserID],
		})
	}
	return contacts, nil
}

// DeletePushRegistration removes a push token. Deleting an unknown token is
// not an error; the returned user ID is empty in that case.
func (r *subscriberRepository) DeletePushRegistration(ctx context.Context, token string) (string, error) {
	var reg entities.PushRegistration
	err := r.db.WithContext(ctx).
		Where("token = ?", token).
		Limit(1).
		Find(&reg).Error
	if err != nil {
		return "", fmt.Errorf("failed to find push registration: %w", err)
	}
	if reg.ID == 0 {
		return "", nil
	}
	if err := r.db.WithContext(ctx).Delete(&entities.PushRegistration{}, reg.ID).Error; err != nil {
		return "", fmt.Errorf("failed to delete push registration: %w", err)
	}
	return reg.UserID, nil
}

// CreateSubscriber inserts a subscriber.
func (r *subscriberRepository) CreateSubscriber(ctx context.Context, s *entities.Subscriber) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("failed to create subscriber %s: %w", s.UserID, err)
	}
	return nil
}

// Subscribe links a subscriber to a system type. Subscribing twice is a no-op.
func (r *subscriberRepository) Subscribe(ctx context.Context, userID, systemType string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.Subscriber{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up subscriber %s: %w", userID, err)
	}
	if count == 0 {
		return ErrSubscriberNotFound
	}
	sub := entities.Subscription{UserID: userID, SystemType: systemType}
	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&sub).Error
	if err != nil {
		return fmt.Errorf("failed to subscribe %s to %s: %w", userID, systemType, err)
	}
	return nil
}

// RegisterPushToken stores a push token, moving it to the new owner if it
// was registered before.
func (r *subscriberRepository) RegisterPushToken(ctx context.Context, reg *entities.PushRegistration) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform"}),
		}).
		Create(reg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("failed to register push token: %w", err)
	}
	return nil
}
