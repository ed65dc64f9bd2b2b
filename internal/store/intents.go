package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/avantisbot/copytrader/internal/types"
)

// IntentStore persists CopyIntent and TxIntent records and enforces the
// idempotency key (user_id, source_fill_id) at the storage layer.
type IntentStore struct {
	db *gorm.DB
}

func NewIntentStore(db *gorm.DB) *IntentStore { return &IntentStore{db: db} }

// ErrDuplicateIntent is returned when an intent for (user_id,
// source_fill_id) already exists, per spec §4.5's idempotency rule.
var ErrDuplicateIntent = errors.New("duplicate copy intent for user/fill")

// Create inserts a new CopyIntent, failing with ErrDuplicateIntent if one
// already exists for this (user_id, source_fill_id) pair.
func (s *IntentStore) Create(ctx context.Context, in types.CopyIntent) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&IntentRow{}).
		Where("user_id = ? AND source_fill_id = ?", in.UserID, in.SourceFillID).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("check intent idempotency: %w", err)
	}
	if count > 0 {
		return ErrDuplicateIntent
	}
	row := IntentFromDomain(in)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create copy intent: %w", err)
	}
	return nil
}

// UpdateStatus advances an intent's status/reason, the only mutation the
// state machine in spec §4.5 allows after creation.
func (s *IntentStore) UpdateStatus(ctx context.Context, intentID string, status types.IntentStatus, reason types.ReasonCode, txHash *string) error {
	updates := map[string]interface{}{"status": string(status), "reason_code": string(reason)}
	if txHash != nil {
		updates["tx_hash"] = *txHash
	}
	res := s.db.WithContext(ctx).Model(&IntentRow{}).Where("intent_id = ?", intentID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update intent status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("intent %s not found", intentID)
	}
	return nil
}

// Get returns a single CopyIntent by ID.
func (s *IntentStore) Get(ctx context.Context, intentID string) (types.CopyIntent, bool, error) {
	var row IntentRow
	err := s.db.WithContext(ctx).Where("intent_id = ?", intentID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.CopyIntent{}, false, nil
	}
	if err != nil {
		return types.CopyIntent{}, false, fmt.Errorf("load intent: %w", err)
	}
	return row.ToDomain(), true, nil
}

// PendingForUser returns a user's intents still in a non-terminal status,
// used by the execution worker pool to resume in-flight work.
func (s *IntentStore) PendingForUser(ctx context.Context, userID string) ([]types.CopyIntent, error) {
	var rows []IntentRow
	err := s.db.WithContext(ctx).Where("user_id = ? AND status IN ?", userID,
		[]string{string(types.IntentPending), string(types.IntentValidated), string(types.IntentSubmitted)}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load pending intents: %w", err)
	}
	out := make([]types.CopyIntent, len(rows))
	for i, r := range rows {
		out[i] = r.ToDomain()
	}
	return out, nil
}

// CreateTxIntent inserts the low-level transaction record the orchestrator
// drives through build/sign/broadcast/confirm.
func (s *IntentStore) CreateTxIntent(ctx context.Context, tx types.TxIntent) (uint64, error) {
	row := TxIntentFromDomain(tx)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("create tx intent: %w", err)
	}
	return row.ID, nil
}

// UpdateTxIntent persists the orchestrator's next state for a TxIntent
// (after signing, broadcast, or confirmation).
func (s *IntentStore) UpdateTxIntent(ctx context.Context, tx types.TxIntent) error {
	row := TxIntentFromDomain(tx)
	res := s.db.WithContext(ctx).Model(&TxIntentRow{}).Where("id = ?", tx.ID).Updates(&row)
	if res.Error != nil {
		return fmt.Errorf("update tx intent: %w", res.Error)
	}
	return nil
}

// OpenTxIntents returns every TxIntent not yet in a terminal state, so the
// orchestrator can resume polling after a crash.
func (s *IntentStore) OpenTxIntents(ctx context.Context) ([]types.TxIntent, error) {
	var rows []TxIntentRow
	err := s.db.WithContext(ctx).Where("status IN ?",
		[]string{string(types.TxBuilt), string(types.TxSigned), string(types.TxBroadcast)}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load open tx intents: %w", err)
	}
	out := make([]types.TxIntent, len(rows))
	for i, r := range rows {
		out[i] = r.ToDomain()
	}
	return out, nil
}
