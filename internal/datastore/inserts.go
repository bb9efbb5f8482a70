// inserts.go append-only write operations
package datastore

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/retracehq/retrace/internal/errors"
	"gorm.io/gorm"
)

const (
	writeMaxRetries = 5
	writeBaseDelay  = 100 * time.Millisecond
)

// withWriteTx runs fc in a transaction behind the single-writer lock,
// retrying on a busy/locked database with linear backoff. Each attempt gets
// a transaction ID for write tracing.
func (ds *DataStore) withWriteTx(operation string, fc func(tx *gorm.DB) error) error {
	if ds.DB == nil {
		return ErrDBNotConnected
	}

	ds.writeMu.Lock()
	defer ds.writeMu.Unlock()

	txID := fmt.Sprintf("tx-%s", uuid.New().String()[:8])

	var lastErr error
	for attempt := 1; attempt <= writeMaxRetries; attempt++ {
		lastErr = ds.DB.Transaction(fc)
		if lastErr == nil {
			return nil
		}
		if !isBusyError(lastErr) {
			break
		}
		getLogger().Warn("Database busy, retrying write",
			"tx_id", txID,
			"operation", operation,
			"attempt", attempt)
		time.Sleep(writeBaseDelay * time.Duration(attempt))
	}

	var ee *errors.EnhancedError
	if errors.As(lastErr, &ee) {
		// Already categorized (e.g. ErrNoVideoChunk); keep it intact.
		return lastErr
	}
	if isConflictError(lastErr) {
		return errors.New(lastErr).
			Component("datastore").
			Category(errors.CategoryConflict).
			Context("operation", operation).
			Context("tx_id", txID).
			Build()
	}
	return errors.New(lastErr).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Context("tx_id", txID).
		Build()
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InsertVideoChunk records a new video chunk file and returns its ID.
func (ds *DataStore) InsertVideoChunk(filePath string) (uint, error) {
	chunk := VideoChunk{
		FilePath:  filePath,
		CreatedAt: time.Now().UTC(),
	}
	err := ds.withWriteTx("insert_video_chunk", func(tx *gorm.DB) error {
		return tx.Create(&chunk).Error
	})
	if err != nil {
		return 0, err
	}
	getLogger().Debug("Inserted video chunk", "chunk_id", chunk.ID, "file_path", filePath)
	return chunk.ID, nil
}

// InsertFrame appends a frame to the most recent video chunk and returns
// the frame ID. The offset index is computed inside the transaction so it
// is unique and strictly increasing per chunk.
func (ds *DataStore) InsertFrame(appName string) (uint, error) {
	frame := Frame{
		AppName:   appName,
		Timestamp: ds.frameTimestamp(),
	}
	err := ds.withWriteTx("insert_frame", func(tx *gorm.DB) error {
		var chunk VideoChunk
		if err := tx.Order("id DESC").First(&chunk).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoVideoChunk
			}
			return err
		}

		var maxOffset int
		row := tx.Model(&Frame{}).
			Where("video_chunk_id = ?", chunk.ID).
			Select("COALESCE(MAX(offset_index), -1)").
			Row()
		if err := row.Scan(&maxOffset); err != nil {
			return err
		}

		frame.VideoChunkID = chunk.ID
		frame.OffsetIndex = maxOffset + 1
		return tx.Create(&frame).Error
	})
	if err != nil {
		return 0, err
	}
	return frame.ID, nil
}

// InsertOCRText records the OCR result for a frame and updates the
// full-text index in the same transaction. Inserting a second OCR row for a
// frame is a conflict.
func (ds *DataStore) InsertOCRText(frameID uint, text, textJSON, newTextJSON, rawOutput, appName, engine string) error {
	row := OCRText{
		FrameID:                    frameID,
		Text:                       text,
		TextJSON:                   textJSON,
		NewTextJSONVsPreviousFrame: newTextJSON,
		RawOutput:                  rawOutput,
		Engine:                     engine,
	}
	err := ds.withWriteTx("insert_ocr_text", func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if text == "" {
			return nil
		}
		return tx.Exec(
			"INSERT INTO ocr_texts_fts (text, frame_id) VALUES (?, ?)",
			text, frameID,
		).Error
	})
	if err != nil {
		return err
	}
	getLogger().Debug("Inserted OCR text",
		"frame_id", frameID,
		"app_name", appName,
		"engine", engine,
		"text_length", len(text))
	return nil
}

// InsertAudioChunk records a new audio chunk file and returns its ID.
func (ds *DataStore) InsertAudioChunk(filePath, deviceID string) (uint, error) {
	chunk := AudioChunk{
		FilePath:  filePath,
		DeviceID:  deviceID,
		CreatedAt: time.Now().UTC(),
	}
	err := ds.withWriteTx("insert_audio_chunk", func(tx *gorm.DB) error {
		return tx.Create(&chunk).Error
	})
	if err != nil {
		return 0, err
	}
	getLogger().Debug("Inserted audio chunk", "chunk_id", chunk.ID, "file_path", filePath, "device", deviceID)
	return chunk.ID, nil
}

// InsertAudioTranscription records one transcribed segment of an audio
// chunk and updates the full-text index in the same transaction.
func (ds *DataStore) InsertAudioTranscription(chunkID uint, transcription string, offsetIndex int, engine string) error {
	row := AudioTranscription{
		AudioChunkID:  chunkID,
		OffsetIndex:   offsetIndex,
		Transcription: transcription,
		Engine:        engine,
		Timestamp:     ds.audioTimestamp(),
	}
	return ds.withWriteTx("insert_audio_transcription", func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if transcription == "" {
			return nil
		}
		return tx.Exec(
			"INSERT INTO audio_transcriptions_fts (transcription, transcription_id) VALUES (?, ?)",
			transcription, row.ID,
		).Error
	})
}
