package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"subbox_backend/internal/model"
	"subbox_backend/internal/subscription"
)

// Store is the gorm implementation of subscription.Store. Writes never cascade
// into associations; related rows are owned by their own writers.
type Store struct {
	db *gorm.DB
}

var _ subscription.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *Store) Transaction(ctx context.Context, fn func(tx subscription.Store) error) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return translate(s.conn(ctx).Omit(clause.Associations).Create(user).Error)
}

func (s *Store) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.conn(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.conn(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) UpdateUserProfile(ctx context.Context, user *model.User) error {
	res := s.conn(ctx).Model(&model.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"first_name": user.FirstName,
		"last_name":  user.LastName,
	})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return subscription.ErrRecordNotFound
	}
	return nil
}

func (s *Store) ListActivePlans(ctx context.Context) ([]model.Plan, error) {
	var plans []model.Plan
	err := s.conn(ctx).Where("is_active = ?", true).Order("price_monthly ASC").Find(&plans).Error
	return plans, translate(err)
}

func (s *Store) GetPlan(ctx context.Context, id uint) (*model.Plan, error) {
	var plan model.Plan
	if err := s.conn(ctx).First(&plan, id).Error; err != nil {
		return nil, translate(err)
	}
	return &plan, nil
}

func (s *Store) GetSubscription(ctx context.Context, id uint) (*model.Subscription, error) {
	var sub model.Subscription
	if err := s.conn(ctx).Preload("Plan").First(&sub, id).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *Store) FindActiveSubscription(ctx context.Context, userID uint) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.conn(ctx).Preload("Plan").
		Where("user_id = ? AND status = ?", userID, model.StatusActive).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *Store) FindCurrentSubscription(ctx context.Context, userID uint) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.conn(ctx).Preload("Plan").
		Where("user_id = ? AND status IN ?", userID, []model.SubscriptionStatus{
			model.StatusActive, model.StatusTrialing, model.StatusPastDue,
		}).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *Store) FindSubscriptionByExternalID(ctx context.Context, ref string) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.conn(ctx).Preload("Plan").Preload("User").
		Where("stripe_subscription_id = ?", ref).
		First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *Store) ListUserSubscriptions(ctx context.Context, userID uint) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := s.conn(ctx).Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&subs).Error
	return subs, translate(err)
}

func (s *Store) ListSubscriptionsByStatus(ctx context.Context, statuses ...model.SubscriptionStatus) ([]model.Subscription, error) {
	var subs []model.Subscription
	if len(statuses) == 0 {
		return subs, nil
	}
	err := s.conn(ctx).Where("status IN ?", statuses).Order("id ASC").Find(&subs).Error
	return subs, translate(err)
}

func (s *Store) ListRenewingSubscriptions(ctx context.Context, from, to time.Time) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := s.conn(ctx).Preload("User").Preload("Plan").
		Where("status = ? AND cancel_at_period_end = ?", model.StatusActive, false).
		Where("current_period_end >= ? AND current_period_end < ?", from, to).
		Order("current_period_end ASC").
		Find(&subs).Error
	return subs, translate(err)
}

func (s *Store) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	return translate(s.conn(ctx).Omit(clause.Associations).Create(sub).Error)
}

func (s *Store) UpdateSubscriptionState(ctx context.Context, sub *model.Subscription) error {
	res := s.conn(ctx).Model(&model.Subscription{}).Where("id = ?", sub.ID).Updates(map[string]interface{}{
		"status":               sub.Status,
		"current_period_start": sub.CurrentPeriodStart,
		"current_period_end":   sub.CurrentPeriodEnd,
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
		"processor_updated_at": sub.ProcessorUpdatedAt,
	})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return subscription.ErrRecordNotFound
	}
	return nil
}

func (s *Store) CreatePayment(ctx context.Context, payment *model.Payment) error {
	return translate(s.conn(ctx).Omit(clause.Associations).Create(payment).Error)
}

func (s *Store) ListUserPayments(ctx context.Context, userID uint) ([]model.Payment, error) {
	var payments []model.Payment
	err := s.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&payments).Error
	return payments, translate(err)
}

func (s *Store) ListUserBoxes(ctx context.Context, userID uint) ([]model.Box, error) {
	var boxes []model.Box
	err := s.conn(ctx).Preload("Subscription.Plan").
		Where("user_id = ?", userID).
		Order("box_date DESC").
		Find(&boxes).Error
	return boxes, translate(err)
}

func (s *Store) CreateReconciliationTask(ctx context.Context, task *model.ReconciliationTask) error {
	return translate(s.conn(ctx).Create(task).Error)
}

func (s *Store) ListPendingReconciliationTasks(ctx context.Context, limit int) ([]model.ReconciliationTask, error) {
	var tasks []model.ReconciliationTask
	q := s.conn(ctx).Where("resolved_at IS NULL").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&tasks).Error
	return tasks, translate(err)
}

func (s *Store) SaveReconciliationTask(ctx context.Context, task *model.ReconciliationTask) error {
	return translate(s.conn(ctx).Save(task).Error)
}

// DB exposes the underlying handle for seeding and admin tooling.
func (s *Store) DB() *gorm.DB {
	return s.db
}
