package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yedidyatob/WhatsAppAssistant/pkg/whatsapp"
	"github.com/yedidyatob/WhatsAppAssistant/scheduler/domain"
)

// scheduledMessageModel is the gorm mapping of domain.ScheduledMessage.
// from_chat_digits is the digit projection of from_chat_id, computed on
// write so sender filters work identically on SQLite and Postgres.
type scheduledMessageModel struct {
	ID                    string         `gorm:"column:id;primaryKey;size:36"`
	ChatID                string         `gorm:"column:chat_id;not null"`
	FromChatID            sql.NullString `gorm:"column:from_chat_id"`
	FromChatDigits        string         `gorm:"column:from_chat_digits;index"`
	ConfirmationMessageID sql.NullString `gorm:"column:confirmation_message_id;index"`
	Text                  string         `gorm:"column:text;not null"`
	SendAt                time.Time      `gorm:"column:send_at;not null;index:idx_scheduled_messages_status_send_at,priority:2"`
	Status                string         `gorm:"column:status;not null;default:SCHEDULED;index:idx_scheduled_messages_status_send_at,priority:1"`
	LockedAt              *time.Time     `gorm:"column:locked_at"`
	SentAt                *time.Time     `gorm:"column:sent_at"`
	AttemptCount          int            `gorm:"column:attempt_count;not null;default:0"`
	LastError             sql.NullString `gorm:"column:last_error"`
	IdempotencyKey        string         `gorm:"column:idempotency_key;not null;uniqueIndex"`
	Source                string         `gorm:"column:source;not null"`
	Reason                sql.NullString `gorm:"column:reason"`
	CreatedAt             time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt             time.Time      `gorm:"column:updated_at;not null"`
}

func (scheduledMessageModel) TableName() string {
	return "scheduled_messages"
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullStringValue(value sql.NullString) string {
	if value.Valid {
		return value.String
	}
	return ""
}

func toModel(msg domain.ScheduledMessage) scheduledMessageModel {
	return scheduledMessageModel{
		ID:                    msg.ID.String(),
		ChatID:                msg.ChatID,
		FromChatID:            nullString(msg.FromChatID),
		FromChatDigits:        senderDigits(msg.FromChatID),
		ConfirmationMessageID: nullString(msg.ConfirmationMessageID),
		Text:                  msg.Text,
		SendAt:                msg.SendAt.UTC(),
		Status:                string(msg.Status),
		LockedAt:              msg.LockedAt,
		SentAt:                msg.SentAt,
		AttemptCount:          msg.AttemptCount,
		LastError:             nullString(msg.LastError),
		IdempotencyKey:        msg.IdempotencyKey,
		Source:                msg.Source,
		Reason:                nullString(msg.Reason),
		CreatedAt:             msg.CreatedAt.UTC(),
		UpdatedAt:             msg.UpdatedAt.UTC(),
	}
}

func toDomain(model scheduledMessageModel) (domain.ScheduledMessage, error) {
	id, err := uuid.Parse(model.ID)
	if err != nil {
		return domain.ScheduledMessage{}, err
	}
	return domain.ScheduledMessage{
		ID:                    id,
		ChatID:                model.ChatID,
		FromChatID:            nullStringValue(model.FromChatID),
		ConfirmationMessageID: nullStringValue(model.ConfirmationMessageID),
		Text:                  model.Text,
		SendAt:                model.SendAt.UTC(),
		Status:                domain.MessageStatus(model.Status),
		LockedAt:              model.LockedAt,
		SentAt:                model.SentAt,
		AttemptCount:          model.AttemptCount,
		LastError:             nullStringValue(model.LastError),
		IdempotencyKey:        model.IdempotencyKey,
		Source:                model.Source,
		Reason:                nullStringValue(model.Reason),
		CreatedAt:             model.CreatedAt.UTC(),
		UpdatedAt:             model.UpdatedAt.UTC(),
	}, nil
}

func senderDigits(fromChatID string) string {
	if fromChatID == "" {
		return ""
	}
	return whatsapp.NormalizeSenderID(fromChatID)
}

// ScheduledMessageGormRepository stores messages through gorm, on SQLite or
// Postgres depending on the configured dialector.
type ScheduledMessageGormRepository struct {
	db *gorm.DB
}

var _ domain.IScheduledMessageRepository = (*ScheduledMessageGormRepository)(nil)

func NewScheduledMessageGormRepository(db *gorm.DB) *ScheduledMessageGormRepository {
	return &ScheduledMessageGormRepository{db: db}
}

// Init creates or migrates the scheduled_messages table.
func (r *ScheduledMessageGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&scheduledMessageModel{})
}

func (r *ScheduledMessageGormRepository) Create(ctx context.Context, msg domain.ScheduledMessage) error {
	model := toModel(msg)
	err := r.db.WithContext(ctx).Create(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return domain.ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

func (r *ScheduledMessageGormRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ScheduledMessage, error) {
	var model scheduledMessageModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ScheduledMessage{}, domain.ErrMessageNotFound
	}
	if err != nil {
		return domain.ScheduledMessage{}, err
	}
	return toDomain(model)
}

func (r *ScheduledMessageGormRepository) FindByIdempotencyKey(ctx context.Context, key string) (domain.ScheduledMessage, error) {
	var model scheduledMessageModel
	err := r.db.WithContext(ctx).First(&model, "idempotency_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ScheduledMessage{}, domain.ErrMessageNotFound
	}
	if err != nil {
		return domain.ScheduledMessage{}, err
	}
	return toDomain(model)
}

func (r *ScheduledMessageGormRepository) FindByIDPrefix(ctx context.Context, prefix string, limit int) ([]domain.ScheduledMessage, error) {
	var models []scheduledMessageModel
	err := r.db.WithContext(ctx).
		Where("REPLACE(id, '-', '') LIKE ?", strings.ToLower(prefix)+"%").
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(models)
}

func (r *ScheduledMessageGormRepository) FindByIDPrefixForSender(ctx context.Context, prefix, normalizedSender string, limit int) ([]domain.ScheduledMessage, error) {
	var models []scheduledMessageModel
	err := r.db.WithContext(ctx).
		Where("REPLACE(id, '-', '') LIKE ? AND from_chat_digits = ?", strings.ToLower(prefix)+"%", normalizedSender).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(models)
}

func (r *ScheduledMessageGormRepository) ListScheduledForSender(ctx context.Context, normalizedSender string, limit int) ([]domain.ScheduledMessage, error) {
	var models []scheduledMessageModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND from_chat_digits = ?", domain.StatusScheduled, normalizedSender).
		Order("send_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(models)
}

func (r *ScheduledMessageGormRepository) ListUpcoming(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledMessage, error) {
	now = now.UTC()
	staleBefore := now.Add(-domain.LeaseTimeout)

	var models []scheduledMessageModel
	err := r.db.WithContext(ctx).
		Where("(status = ? AND send_at <= ?) OR (status = ? AND send_at <= ? AND (locked_at IS NULL OR locked_at < ?))",
			domain.StatusScheduled, now, domain.StatusLocked, now, staleBefore).
		Order("send_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(models)
}

func (r *ScheduledMessageGormRepository) LockForSending(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	now = now.UTC()
	staleBefore := now.Add(-domain.LeaseTimeout)

	tx := r.db.WithContext(ctx).Model(&scheduledMessageModel{}).
		Where("id = ? AND (status = ? OR (status = ? AND (locked_at IS NULL OR locked_at < ?)))",
			id.String(), domain.StatusScheduled, domain.StatusLocked, staleBefore).
		Updates(map[string]any{
			"status":     string(domain.StatusLocked),
			"locked_at":  now,
			"updated_at": now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *ScheduledMessageGormRepository) MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error {
	now = now.UTC()
	return r.db.WithContext(ctx).Model(&scheduledMessageModel{}).
		Where("id = ?", id.String()).
		Updates(map[string]any{
			"status":     string(domain.StatusSent),
			"sent_at":    now,
			"updated_at": now,
		}).Error
}

func (r *ScheduledMessageGormRepository) MarkFailed(ctx context.Context, id uuid.UUID, sendError string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&scheduledMessageModel{}).
		Where("id = ?", id.String()).
		Updates(map[string]any{
			"status":        string(domain.StatusFailed),
			"last_error":    sendError,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"updated_at":    now.UTC(),
		}).Error
}

func (r *ScheduledMessageGormRepository) Cancel(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).Model(&scheduledMessageModel{}).
		Where("id = ? AND status != ?", id.String(), domain.StatusSent).
		Updates(map[string]any{
			"status":     string(domain.StatusCancelled),
			"updated_at": now.UTC(),
		}).Error
}

func (r *ScheduledMessageGormRepository) SetConfirmationMessageID(ctx context.Context, id uuid.UUID, confirmationMessageID string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&scheduledMessageModel{}).
		Where("id = ?", id.String()).
		Updates(map[string]any{
			"confirmation_message_id": confirmationMessageID,
			"updated_at":              now.UTC(),
		}).Error
}

func (r *ScheduledMessageGormRepository) FindScheduledByConfirmationMessageIDForSender(ctx context.Context, confirmationMessageID, normalizedSender string) (domain.ScheduledMessage, error) {
	var model scheduledMessageModel
	err := r.db.WithContext(ctx).
		Where("confirmation_message_id = ? AND status IN ? AND from_chat_digits = ?",
			confirmationMessageID, []string{string(domain.StatusScheduled), string(domain.StatusLocked)}, normalizedSender).
		Order("created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ScheduledMessage{}, domain.ErrMessageNotFound
	}
	if err != nil {
		return domain.ScheduledMessage{}, err
	}
	return toDomain(model)
}

func toDomainSlice(models []scheduledMessageModel) ([]domain.ScheduledMessage, error) {
	messages := make([]domain.ScheduledMessage, 0, len(models))
	for _, model := range models {
		msg, err := toDomain(model)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
