// manage.go database schema management
package datastore

import (
	"github.com/retracehq/retrace/internal/errors"
	"gorm.io/gorm"
)

// ftsDDL creates the external full-text index tables. They are populated
// explicitly inside the same transaction as the base row insert so the
// index can never drift from the rows it covers.
var ftsDDL = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS ocr_texts_fts USING fts5(
		text,
		frame_id UNINDEXED
	)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS audio_transcriptions_fts USING fts5(
		transcription,
		transcription_id UNINDEXED
	)`,
}

// performAutoMigration migrates the relational schema and creates the FTS5
// virtual tables.
func performAutoMigration(db *gorm.DB, debug bool) error {
	if err := db.AutoMigrate(
		&VideoChunk{},
		&Frame{},
		&OCRText{},
		&AudioChunk{},
		&AudioTranscription{},
	); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migration").
			Build()
	}

	for _, ddl := range ftsDDL {
		if err := db.Exec(ddl).Error; err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "create_fts_tables").
				Build()
		}
	}

	if debug {
		getLogger().Debug("Schema migration complete")
	}
	return nil
}
