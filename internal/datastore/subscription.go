package datastore

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kartevonmorgen/kvmsync/internal/errors"
)

// CreateSubscription stores a new subscription. A missing ID is assigned,
// and an identical existing subscription is reported as a conflict so the
// API layer can answer 409.
func (ds *DataStore) CreateSubscription(ctx context.Context, sub *SubscriptionRecord) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	existing, err := ds.FindSubscription(ctx, sub.Email,
		sub.LatMin, sub.LonMin, sub.LatMax, sub.LonMax,
		sub.Interval, sub.SubscriptionType)
	if err != nil && !errors.IsNotFound(err) {
		return err
	}
	if existing != nil {
		return errors.Newf("subscription already exists").
			Component("datastore").
			Category(errors.CategoryConflict).
			Context("subscription_id", existing.ID).
			Build()
	}

	if err := ds.DB.WithContext(ctx).Create(sub).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("email", sub.Email).
			Build()
	}
	return nil
}

// GetSubscription retrieves a subscription by ID.
func (ds *DataStore) GetSubscription(ctx context.Context, id string) (*SubscriptionRecord, error) {
	var sub SubscriptionRecord
	if err := ds.DB.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("subscription %s not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("subscription_id", id).
			Build()
	}
	return &sub, nil
}

// FindSubscription looks up a subscription by its identifying fields, used
// for duplicate detection on create.
func (ds *DataStore) FindSubscription(ctx context.Context, email string, latMin, lonMin, latMax, lonMax float64, interval, subscriptionType string) (*SubscriptionRecord, error) {
	var sub SubscriptionRecord
	err := ds.DB.WithContext(ctx).
		Where("email = ?", email).
		Where("lat_min = ? AND lon_min = ? AND lat_max = ? AND lon_max = ?",
			latMin, lonMin, latMax, lonMax).
		Where("`interval` = ? AND subscription_type = ?", interval, subscriptionType).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("subscription not found").
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return &sub, nil
}

// ListSubscriptions returns all subscriptions for an email address.
func (ds *DataStore) ListSubscriptions(ctx context.Context, email string) ([]SubscriptionRecord, error) {
	var subs []SubscriptionRecord
	if err := ds.DB.WithContext(ctx).Where("email = ?", email).Find(&subs).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("email", email).
			Build()
	}
	return subs, nil
}

// ListActiveSubscriptions returns all active subscriptions for a digest
// interval (daily, weekly, monthly). An empty interval returns all active
// subscriptions.
func (ds *DataStore) ListActiveSubscriptions(ctx context.Context, interval string) ([]SubscriptionRecord, error) {
	q := ds.DB.WithContext(ctx).Where("is_active = ?", true)
	if interval != "" {
		q = q.Where("`interval` = ?", interval)
	}
	var subs []SubscriptionRecord
	if err := q.Find(&subs).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("interval", interval).
			Build()
	}
	return subs, nil
}

// UpdateSubscription saves all fields of an existing subscription.
func (ds *DataStore) UpdateSubscription(ctx context.Context, sub *SubscriptionRecord) error {
	res := ds.DB.WithContext(ctx).Save(sub)
	if res.Error != nil {
		return errors.New(res.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("subscription_id", sub.ID).
			Build()
	}
	return nil
}

// SetSubscriptionActive flips the activation flag, used by the activation
// and unsubscribe endpoints.
func (ds *DataStore) SetSubscriptionActive(ctx context.Context, id string, active bool) error {
	res := ds.DB.WithContext(ctx).Model(&SubscriptionRecord{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return errors.New(res.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("subscription_id", id).
			Build()
	}
	if res.RowsAffected == 0 {
		return errors.Newf("subscription %s not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// DeleteSubscription removes a subscription by ID.
func (ds *DataStore) DeleteSubscription(ctx context.Context, id string) error {
	res := ds.DB.WithContext(ctx).Delete(&SubscriptionRecord{}, "id = ?", id)
	if res.Error != nil {
		return errors.New(res.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("subscription_id", id).
			Build()
	}
	if res.RowsAffected == 0 {
		return errors.Newf("subscription %s not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}
