package statestore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/bulkflow/internal/platform/logger"
)

// BulkEntityAttribute is one attribute slot of one record. The root lives in
// the row whose Attribute is RootField.
type BulkEntityAttribute struct {
	RecordID  string         `gorm:"column:record_id;primaryKey;size:128"`
	Attribute string         `gorm:"column:attribute;primaryKey;size:192"`
	Value     datatypes.JSON `gorm:"column:value;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null;index"`
}

func (BulkEntityAttribute) TableName() string { return "bulk_entity_attributes" }

// GormStore keeps records as rows of bulk_entity_attributes, one row per slot.
type GormStore struct {
	log   *logger.Logger
	db    *gorm.DB
	ready atomic.Bool
}

func NewGormStore(log *logger.Logger, db *gorm.DB) (*GormStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if db == nil {
		return nil, fmt.Errorf("gorm db required")
	}
	return &GormStore{log: log.With("service", "GormStateStore"), db: db}, nil
}

func (s *GormStore) Init(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("statestore gorm: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		s.ready.Store(false)
		return fmt.Errorf("statestore gorm ping: %w", err)
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&BulkEntityAttribute{}); err != nil {
		return fmt.Errorf("statestore gorm migrate: %w", err)
	}
	s.ready.Store(true)
	s.log.Info("state store ready", "dialect", s.db.Dialector.Name())
	return nil
}

func (s *GormStore) CanCall() bool { return s != nil && s.ready.Load() }

func (s *GormStore) upsert(ctx context.Context, id, attr string, raw []byte) error {
	return upsertRow(s.db.WithContext(ctx), id, attr, raw)
}

func upsertRow(tx *gorm.DB, id, attr string, raw []byte) error {
	row := BulkEntityAttribute{
		RecordID:  id,
		Attribute: attr,
		Value:     datatypes.JSON(raw),
		UpdatedAt: time.Now().UTC(),
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_id"}, {Name: "attribute"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormStore) fetch(ctx context.Context, id, attr string) ([]byte, error) {
	var row BulkEntityAttribute
	err := s.db.WithContext(ctx).
		Where("record_id = ? AND attribute = ?", id, attr).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(row.Value), nil
}

func (s *GormStore) Load(ctx context.Context, id string, out any) error {
	const op = "statestore.Load"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	raw, err := s.fetch(ctx, id, RootField)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return decode(op, raw, out)
}

func (s *GormStore) Store(ctx context.Context, id string, root any) error {
	const op = "statestore.Store"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	raw, err := encode(op, root)
	if err != nil {
		return err
	}
	if err := s.upsert(ctx, id, RootField, raw); err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return nil
}

func (s *GormStore) GetAttribute(ctx context.Context, id, key string, out any) error {
	const op = "statestore.GetAttribute"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	if err := validateKey(op, key); err != nil {
		return err
	}
	raw, err := s.fetch(ctx, id, key)
	if err != nil {
		return fmt.Errorf("%s %s/%s: %w", op, id, key, err)
	}
	return decode(op, raw, out)
}

func (s *GormStore) SetAttribute(ctx context.Context, id, key string, value any) error {
	const op = "statestore.SetAttribute"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	if err := validateKey(op, key); err != nil {
		return err
	}
	raw, err := encode(op, value)
	if err != nil {
		return err
	}
	if err := s.upsert(ctx, id, key, raw); err != nil {
		return fmt.Errorf("%s %s/%s: %w", op, id, key, err)
	}
	return nil
}

func (s *GormStore) Update(ctx context.Context, id string, fn UpdateFunc) error {
	const op = "statestore.Update"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	return s.update(ctx, op, id, RootField, fn)
}

func (s *GormStore) UpdateAttribute(ctx context.Context, id, key string, fn UpdateFunc) error {
	const op = "statestore.UpdateAttribute"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	if err := validateKey(op, key); err != nil {
		return err
	}
	return s.update(ctx, op, id, key, fn)
}

// update locks the slot row for the length of the transaction. SQLite has no
// row locks; its single writer serializes the transaction instead.
func (s *GormStore) update(ctx context.Context, op, id, attr string, fn UpdateFunc) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if s.db.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var rows []BulkEntityAttribute
		if err := q.Where("record_id = ? AND attribute = ?", id, attr).Limit(1).Find(&rows).Error; err != nil {
			return err
		}
		var cur Slot
		if len(rows) == 1 {
			cur = Slot{raw: []byte(rows[0].Value)}
		}
		next, err := fn(cur)
		if err != nil || next == nil {
			return err
		}
		raw, err := encode(op, next)
		if err != nil {
			return err
		}
		return upsertRow(tx, id, attr, raw)
	})
	if err != nil {
		return fmt.Errorf("%s %s/%s: %w", op, id, attr, err)
	}
	return nil
}

func (s *GormStore) GetAllAttributeKeys(ctx context.Context, id string) ([]string, error) {
	const op = "statestore.GetAllAttributeKeys"
	if !s.CanCall() {
		return nil, ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.WithContext(ctx).
		Model(&BulkEntityAttribute{}).
		Where("record_id = ? AND attribute <> ?", id, RootField).
		Order("attribute").
		Pluck("attribute", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, id, err)
	}
	return keys, nil
}

func (s *GormStore) Remove(ctx context.Context, id string) error {
	const op = "statestore.Remove"
	if !s.CanCall() {
		return ErrRepositoryUnavailable
	}
	if err := validateID(op, id); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).
		Where("record_id = ?", id).
		Delete(&BulkEntityAttribute{}).Error
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return nil
}

func (s *GormStore) ListIDs(ctx context.Context) ([]string, error) {
	const op = "statestore.ListIDs"
	if !s.CanCall() {
		return nil, ErrRepositoryUnavailable
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&BulkEntityAttribute{}).
		Where("attribute = ?", RootField).
		Order("record_id").
		Pluck("record_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}

func (s *GormStore) Close() error {
	if s == nil {
		return nil
	}
	s.ready.Store(false)
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
