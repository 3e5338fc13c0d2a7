package database

import (
	"context"
	"fmt"

	"github.com/jinzhu/gorm"

	"orderhub/internal/models"
)

// OrderStore is the relational order gateway. Each order row owns its
// status history rows; history is only ever appended.
type OrderStore struct {
	db *gorm.DB
}

// NewOrderStore creates an OrderStore on an opened, migrated database
func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

func withHistory(db *gorm.DB) *gorm.DB {
	return db.Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	})
}

// FindByID returns the oldest order carrying orderID.
// It returns models.ErrOrderNotFound if there is none.
func (s *OrderStore) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return findFirst(withHistory(s.db), orderID)
}

func findFirst(db *gorm.DB, orderID string) (*models.Order, error) {
	var o models.Order
	err := db.Where("order_id = ?", orderID).Order("id ASC").First(&o).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order %q: %w", orderID, err)
	}
	return &o, nil
}

// Insert stores a new order with its seeded history. Duplicate order ids are accepted.
func (s *OrderStore) Insert(ctx context.Context, o *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	for i := range o.StatusHistory {
		o.StatusHistory[i].Timestamp = o.StatusHistory[i].Timestamp.UTC()
	}
	if err := s.db.Create(o).Error; err != nil {
		return fmt.Errorf("insert order %q: %w", o.OrderID, err)
	}
	return nil
}

// FindByPhone returns a customer's newest orders first
func (s *OrderStore) FindByPhone(ctx context.Context, phone string, limit int) ([]*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.list(s.db.Where("customer_phone = ?", phone), limit)
}

// FindAll returns the newest orders, optionally restricted to one status
func (s *OrderStore) FindAll(ctx context.Context, status models.Status, limit int) ([]*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := s.db
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	return s.list(q, limit)
}

func (s *OrderStore) list(q *gorm.DB, limit int) ([]*models.Order, error) {
	orders := make([]*models.Order, 0)
	err := withHistory(q).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ConditionalUpdate applies upd only while the order still has status expected.
// The status change and the history append commit together and the post-image is
// returned. A changed status yields models.ErrStatusConflict.
func (s *OrderStore) ConditionalUpdate(ctx context.Context, orderID string, expected models.Status, upd models.StatusUpdate) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin update %q: %w", orderID, tx.Error)
	}

	updated, err := conditionalUpdate(tx, orderID, expected, upd)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("commit update %q: %w", orderID, err)
	}
	return updated, nil
}

func conditionalUpdate(tx *gorm.DB, orderID string, expected models.Status, upd models.StatusUpdate) (*models.Order, error) {
	current, err := findFirst(tx, orderID)
	if err != nil {
		return nil, err
	}

	cols := map[string]interface{}{
		"status":     string(upd.Status),
		"updated_at": upd.UpdatedAt.UTC(),
	}
	if upd.EstimatedTime != nil {
		cols["estimated_time"] = *upd.EstimatedTime
	}

	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", current.ID, string(expected)).
		UpdateColumns(cols)
	if res.Error != nil {
		return nil, fmt.Errorf("update order %q: %w", orderID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, models.ErrStatusConflict
	}

	entry := upd.Entry
	entry.ID = 0
	entry.OrderRef = current.ID
	entry.Timestamp = entry.Timestamp.UTC()
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("append history %q: %w", orderID, err)
	}

	var post models.Order
	if err := withHistory(tx).First(&post, current.ID).Error; err != nil {
		return nil, fmt.Errorf("reload order %q: %w", orderID, err)
	}
	return &post, nil
}

// Count returns the number of orders matching f
func (s *OrderStore) Count(ctx context.Context, f models.CountFilter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q := s.db.Model(&models.Order{})
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if !f.CreatedSince.IsZero() {
		q = q.Where("created_at >= ?", f.CreatedSince.UTC())
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

// Close releases the database connection
func (s *OrderStore) Close() error {
	return s.db.Close()
}
