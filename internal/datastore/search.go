// search.go query engine over the captured timeline
package datastore

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/retracehq/retrace/internal/errors"
	"gorm.io/gorm"
)

// sanitizeFTSQuery rewrites a free-form query into an FTS5 match
// expression: tokens are the maximal letter/digit runs, each quoted so user
// input can never inject FTS syntax. Returns "" when no tokens remain.
func sanitizeFTSQuery(query string) string {
	tokens := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		quoted = append(quoted, `"`+tok+`"`)
	}
	return strings.Join(quoted, " ")
}

// normalizeSearchBounds clamps limit/offset into their valid ranges.
func normalizeSearchBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Search returns timeline rows matching the query, newest first. Time
// bounds are half-open [startTime, endTime); an appName filter restricts
// the search to OCR content.
func (ds *DataStore) Search(query string, contentType ContentType, limit, offset int, startTime, endTime *time.Time, appName string) ([]SearchResult, error) {
	if ds.DB == nil {
		return nil, ErrDBNotConnected
	}
	if appName != "" {
		contentType = ContentTypeOCR
	}
	limit, offset = normalizeSearchBounds(limit, offset)
	match := sanitizeFTSQuery(query)

	// Fetch enough rows from each stream to page the merged ordering.
	fetch := limit + offset

	var merged []SearchResult
	if contentType == ContentTypeOCR || contentType == ContentTypeAll {
		ocr, err := ds.searchOCR(match, startTime, endTime, appName, fetch)
		if err != nil {
			return nil, err
		}
		merged = append(merged, ocr...)
	}
	if contentType == ContentTypeAudio || contentType == ContentTypeAll {
		audio, err := ds.searchAudio(match, startTime, endTime, fetch)
		if err != nil {
			return nil, err
		}
		merged = append(merged, audio...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		ti, ii := resultOrder(merged[i])
		tj, ij := resultOrder(merged[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ii > ij
	})

	if offset >= len(merged) {
		return []SearchResult{}, nil
	}
	end := offset + limit
	if end > len(merged) {
		end = len(merged)
	}
	return merged[offset:end], nil
}

// resultOrder extracts the (timestamp, id) ordering key of a result.
func resultOrder(r SearchResult) (time.Time, uint) {
	switch v := r.(type) {
	case OCRResult:
		return v.Timestamp, v.FrameID
	case AudioResult:
		return v.Timestamp, v.ChunkID
	default:
		return time.Time{}, 0
	}
}

func (ds *DataStore) searchOCR(match string, startTime, endTime *time.Time, appName string, fetch int) ([]SearchResult, error) {
	q := ds.DB.Table("frames f").
		Select("f.id AS frame_id, o.text AS text, f.timestamp AS timestamp, vc.file_path AS file_path, f.offset_index AS offset_index, f.app_name AS app_name").
		Joins("JOIN ocr_texts o ON o.frame_id = f.id").
		Joins("JOIN video_chunks vc ON vc.id = f.video_chunk_id")

	if match != "" {
		q = q.Where("f.id IN (SELECT frame_id FROM ocr_texts_fts WHERE ocr_texts_fts MATCH ?)", match)
	}
	q = applyTimeBounds(q, "f.timestamp", startTime, endTime)
	if appName != "" {
		q = q.Where("f.app_name LIKE ?", appName)
	}

	var rows []OCRResult
	if err := q.Order("f.timestamp DESC, f.id DESC").Limit(fetch).Scan(&rows).Error; err != nil {
		return nil, searchError(err, "search_ocr")
	}
	results := make([]SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, r)
	}
	return results, nil
}

func (ds *DataStore) searchAudio(match string, startTime, endTime *time.Time, fetch int) ([]SearchResult, error) {
	q := ds.DB.Table("audio_transcriptions a").
		Select("a.audio_chunk_id AS chunk_id, a.transcription AS transcription, a.timestamp AS timestamp, ac.file_path AS file_path, a.offset_index AS offset_index").
		Joins("JOIN audio_chunks ac ON ac.id = a.audio_chunk_id")

	if match != "" {
		q = q.Where("a.id IN (SELECT transcription_id FROM audio_transcriptions_fts WHERE audio_transcriptions_fts MATCH ?)", match)
	}
	q = applyTimeBounds(q, "a.timestamp", startTime, endTime)

	var rows []AudioResult
	if err := q.Order("a.timestamp DESC, a.id DESC").Limit(fetch).Scan(&rows).Error; err != nil {
		return nil, searchError(err, "search_audio")
	}
	results := make([]SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, r)
	}
	return results, nil
}

// applyTimeBounds adds half-open [start, end) conditions on column.
func applyTimeBounds(q *gorm.DB, column string, startTime, endTime *time.Time) *gorm.DB {
	if startTime != nil {
		q = q.Where(column+" >= ?", startTime.UTC())
	}
	if endTime != nil {
		q = q.Where(column+" < ?", endTime.UTC())
	}
	return q
}

// CountSearchResults returns the total number of rows Search would page
// through for the same filters.
func (ds *DataStore) CountSearchResults(query string, contentType ContentType, startTime, endTime *time.Time, appName string) (int64, error) {
	if ds.DB == nil {
		return 0, ErrDBNotConnected
	}
	if appName != "" {
		contentType = ContentTypeOCR
	}
	match := sanitizeFTSQuery(query)

	var total int64
	if contentType == ContentTypeOCR || contentType == ContentTypeAll {
		q := ds.DB.Table("frames f").
			Joins("JOIN ocr_texts o ON o.frame_id = f.id")
		if match != "" {
			q = q.Where("f.id IN (SELECT frame_id FROM ocr_texts_fts WHERE ocr_texts_fts MATCH ?)", match)
		}
		q = applyTimeBounds(q, "f.timestamp", startTime, endTime)
		if appName != "" {
			q = q.Where("f.app_name LIKE ?", appName)
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return 0, searchError(err, "count_ocr")
		}
		total += n
	}
	if contentType == ContentTypeAudio || contentType == ContentTypeAll {
		q := ds.DB.Table("audio_transcriptions a")
		if match != "" {
			q = q.Where("a.id IN (SELECT transcription_id FROM audio_transcriptions_fts WHERE audio_transcriptions_fts MATCH ?)", match)
		}
		q = applyTimeBounds(q, "a.timestamp", startTime, endTime)
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return 0, searchError(err, "count_audio")
		}
		total += n
	}
	return total, nil
}

// GetLatestTimestamps returns the newest frame and transcription
// timestamps, nil when a stream has no rows yet.
func (ds *DataStore) GetLatestTimestamps() (lastFrame, lastAudio *time.Time, err error) {
	if ds.DB == nil {
		return nil, nil, ErrDBNotConnected
	}

	var frame Frame
	res := ds.DB.Order("timestamp DESC, id DESC").First(&frame)
	switch {
	case res.Error == nil:
		ts := frame.Timestamp
		lastFrame = &ts
	case !errors.Is(res.Error, gorm.ErrRecordNotFound):
		return nil, nil, searchError(res.Error, "latest_frame_timestamp")
	}

	var tr AudioTranscription
	res = ds.DB.Order("timestamp DESC, id DESC").First(&tr)
	switch {
	case res.Error == nil:
		ts := tr.Timestamp
		lastAudio = &ts
	case !errors.Is(res.Error, gorm.ErrRecordNotFound):
		return nil, nil, searchError(res.Error, "latest_audio_timestamp")
	}

	return lastFrame, lastAudio, nil
}

func searchError(err error, operation string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}
