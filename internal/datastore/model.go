// model.go this code defines the data model for the application
package datastore

import "time"

// VideoChunk represents a single video file on disk holding encoded frames.
type VideoChunk struct {
	ID        uint      `gorm:"primaryKey"`
	FilePath  string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`
}

// Frame represents one captured screen image within a video chunk. A frame
// always belongs to the most recent video chunk at insert time.
type Frame struct {
	ID           uint   `gorm:"primaryKey"`
	VideoChunkID uint   `gorm:"index:idx_frames_chunk;uniqueIndex:idx_frames_chunk_offset,priority:1;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:VideoChunkID;references:ID"`
	OffsetIndex  int    `gorm:"uniqueIndex:idx_frames_chunk_offset,priority:2;not null"`
	AppName      string `gorm:"index:idx_frames_app_name"`
	Timestamp    time.Time `gorm:"index:idx_frames_timestamp"`
}

// OCRText is the text-extraction result for a frame, one-to-one.
type OCRText struct {
	ID                         uint   `gorm:"primaryKey"`
	FrameID                    uint   `gorm:"uniqueIndex:idx_ocr_frame_id;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:FrameID;references:ID"`
	Text                       string `gorm:"type:text"`
	TextJSON                   string `gorm:"type:text"` // structured per-token data
	NewTextJSONVsPreviousFrame string `gorm:"type:text"` // delta against previous frame on the same monitor
	RawOutput                  string `gorm:"type:text"`
	Engine                     string `gorm:"size:50"`
}

// AudioChunk represents a recorded audio file on disk.
type AudioChunk struct {
	ID        uint      `gorm:"primaryKey"`
	FilePath  string    `gorm:"not null"`
	DeviceID  string    `gorm:"index:idx_audio_chunks_device;size:200"`
	CreatedAt time.Time `gorm:"index"`
}

// AudioTranscription is one transcribed segment of an audio chunk; a chunk
// may yield multiple segments distinguished by OffsetIndex.
type AudioTranscription struct {
	ID           uint   `gorm:"primaryKey"`
	AudioChunkID uint   `gorm:"index:idx_transcriptions_chunk;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:AudioChunkID;references:ID"`
	OffsetIndex  int    `gorm:"not null"`
	Transcription string `gorm:"type:text"`
	Engine       string `gorm:"size:50"`
	Timestamp    time.Time `gorm:"index:idx_transcriptions_timestamp"`
}

// ContentType selects which streams a search covers.
type ContentType string

const (
	ContentTypeAll   ContentType = "all"
	ContentTypeOCR   ContentType = "ocr"
	ContentTypeAudio ContentType = "audio"
)

// ParseContentType maps the wire value onto a ContentType, defaulting to All.
func ParseContentType(s string) ContentType {
	switch s {
	case "ocr":
		return ContentTypeOCR
	case "audio":
		return ContentTypeAudio
	default:
		return ContentTypeAll
	}
}

// SearchResult is one row of a timeline search, either OCR or Audio.
type SearchResult interface {
	Kind() ContentType
}

// OCRResult carries a matched frame with its joined chunk file path so the
// caller can locate the exact frame within its chunk.
type OCRResult struct {
	FrameID     uint      `json:"frame_id"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	FilePath    string    `json:"file_path"`
	OffsetIndex int       `json:"offset_index"`
	AppName     string    `json:"app_name"`
}

// Kind implements SearchResult.
func (OCRResult) Kind() ContentType { return ContentTypeOCR }

// AudioResult carries a matched transcription segment with its joined chunk
// file path.
type AudioResult struct {
	ChunkID       uint      `json:"chunk_id"`
	Transcription string    `json:"transcription"`
	Timestamp     time.Time `json:"timestamp"`
	FilePath      string    `json:"file_path"`
	OffsetIndex   int       `json:"offset_index"`
}

// Kind implements SearchResult.
func (AudioResult) Kind() ContentType { return ContentTypeAudio }
