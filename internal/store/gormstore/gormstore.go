// Package gormstore persists reconciled transcripts in SQLite through
// GORM.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/models"
	"github.com/Rachel-Huang77/Fast-Accent-Translator/internal/store"
)

type conversationRow struct {
	ID        string `gorm:"primaryKey;column:id"`
	StartedMS int64  `gorm:"column:started_ms"`
}

func (conversationRow) TableName() string { return "conversations" }

type segmentRow struct {
	ConversationID string `gorm:"primaryKey;column:conversation_id;index:idx_conv_seq"`
	Seq            int    `gorm:"primaryKey;column:seq;index:idx_conv_seq"`
	IsFinal        bool   `gorm:"column:is_final"`
	StartMS        int64  `gorm:"column:start_ms"`
	EndMS          int64  `gorm:"column:end_ms"`
	Text           string `gorm:"column:text"`
	SpeakerID      string `gorm:"column:speaker_id"`
	AudioURL       string `gorm:"column:audio_url"`
}

func (segmentRow) TableName() string { return "transcripts" }

// Store implements store.Store on a SQLite database.
type Store struct {
	db *gorm.DB
}

// Open connects to the SQLite file at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&conversationRow{}, &segmentRow{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing GORM handle, migrating the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&conversationRow{}, &segmentRow{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// PutConversation upserts conversation metadata.
func (s *Store) PutConversation(ctx context.Context, conv store.Conversation) error {
	row := conversationRow{ID: conv.ID, StartedMS: conv.StartedMS}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	var row conversationRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &store.Conversation{ID: row.ID, StartedMS: row.StartedMS}, nil
}

func (s *Store) MaxSeq(ctx context.Context, conversationID string) (int, error) {
	var max int
	err := s.db.WithContext(ctx).Model(&segmentRow{}).
		Where("conversation_id = ?", conversationID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return max, nil
}

func (s *Store) LastEndMS(ctx context.Context, conversationID string, throughSeq int) (int64, bool, error) {
	var row segmentRow
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND seq <= ?", conversationID, throughSeq).
		Order("end_ms DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("last end ms: %w", err)
	}
	return row.EndMS, true, nil
}

// ReplaceSegments deletes every row with seq > startSeqExclusive and
// inserts the new list inside one transaction.
func (s *Store) ReplaceSegments(ctx context.Context, conversationID string, startSeqExclusive int, segments []models.FinalTranscriptSegment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ? AND seq > ?", conversationID, startSeqExclusive).
			Delete(&segmentRow{}).Error; err != nil {
			return fmt.Errorf("delete segments: %w", err)
		}
		if len(segments) == 0 {
			return nil
		}
		rows := make([]segmentRow, 0, len(segments))
		for _, seg := range segments {
			rows = append(rows, segmentRow{
				ConversationID: seg.ConversationID,
				Seq:            seg.Seq,
				IsFinal:        seg.IsFinal,
				StartMS:        seg.StartMS,
				EndMS:          seg.EndMS,
				Text:           seg.Text,
				SpeakerID:      seg.SpeakerID,
				AudioURL:       seg.AudioURL,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert segments: %w", err)
		}
		return nil
	})
}

func (s *Store) ListSegments(ctx context.Context, conversationID string) ([]models.FinalTranscriptSegment, error) {
	var rows []segmentRow
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	out := make([]models.FinalTranscriptSegment, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.FinalTranscriptSegment{
			ConversationID: row.ConversationID,
			Seq:            row.Seq,
			IsFinal:        row.IsFinal,
			StartMS:        row.StartMS,
			EndMS:          row.EndMS,
			Text:           row.Text,
			SpeakerID:      row.SpeakerID,
			AudioURL:       row.AudioURL,
		})
	}
	return out, nil
}
