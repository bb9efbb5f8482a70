// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"sync"
	"time"

	"github.com/retracehq/retrace/internal/conf"
	"github.com/retracehq/retrace/internal/errors"
	"gorm.io/gorm"
)

// MaxSearchLimit caps the number of rows a single search may return.
// Larger limits are clamped, not rejected.
const MaxSearchLimit = 1000

// Sentinel errors for lookup misses and invariant violations.
var (
	// ErrNoVideoChunk indicates a frame insert arrived before any video chunk.
	ErrNoVideoChunk = errors.Newf("no video chunk to attach frame to").Component("datastore").Category(errors.CategoryNotFound).Build()
	// ErrDBNotConnected indicates the database is not connected.
	ErrDBNotConnected = errors.Newf("database not connected").Component("datastore").Category(errors.CategorySystem).Build()
)

// Interface abstracts the underlying database implementation and defines the
// operations the pipeline and the control surface rely on.
type Interface interface {
	Open() error
	Close() error
	Optimize(ctx context.Context) error // database optimization (VACUUM, ANALYZE)

	InsertVideoChunk(filePath string) (uint, error)
	InsertFrame(appName string) (uint, error)
	InsertOCRText(frameID uint, text, textJSON, newTextJSON, rawOutput, appName, engine string) error
	InsertAudioChunk(filePath, deviceID string) (uint, error)
	InsertAudioTranscription(chunkID uint, transcription string, offsetIndex int, engine string) error

	Search(query string, contentType ContentType, limit, offset int, startTime, endTime *time.Time, appName string) ([]SearchResult, error)
	CountSearchResults(query string, contentType ContentType, startTime, endTime *time.Time, appName string) (int64, error)
	GetLatestTimestamps() (lastFrame, lastAudio *time.Time, err error)

	Transaction(fc func(tx *gorm.DB) error) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance

	// writeMu serializes write transactions from independent producer
	// streams behind a single writer.
	writeMu sync.Mutex

	// lastFrameTS / lastAudioTS clamp store-assigned timestamps monotonic
	// per stream within a process lifetime.
	tsMu        sync.Mutex
	lastFrameTS time.Time
	lastAudioTS time.Time
}

// New creates a store instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	if settings.Output.SQLite.Enabled {
		return &SQLiteStore{Settings: settings}
	}
	return nil
}

// Transaction runs fc inside a database transaction.
func (ds *DataStore) Transaction(fc func(tx *gorm.DB) error) error {
	if ds.DB == nil {
		return ErrDBNotConnected
	}
	return ds.DB.Transaction(fc)
}

// frameTimestamp returns the store-assigned UTC timestamp for the next
// frame row, never earlier than the previous one.
func (ds *DataStore) frameTimestamp() time.Time {
	ds.tsMu.Lock()
	defer ds.tsMu.Unlock()
	now := time.Now().UTC()
	if now.Before(ds.lastFrameTS) {
		now = ds.lastFrameTS
	}
	ds.lastFrameTS = now
	return now
}

// audioTimestamp returns the store-assigned UTC timestamp for the next
// transcription row, never earlier than the previous one.
func (ds *DataStore) audioTimestamp() time.Time {
	ds.tsMu.Lock()
	defer ds.tsMu.Unlock()
	now := time.Now().UTC()
	if now.Before(ds.lastAudioTS) {
		now = ds.lastAudioTS
	}
	ds.lastAudioTS = now
	return now
}
