package models

import "time"

// ScreenshotDataKey is the result field workers use to carry captured
// evidence images. The persistence layer strips it from the stored result
// after saving the screenshots.
const ScreenshotDataKey = "screenshot_data"

// Screenshot is one captured evidence image for a job. Rows are unique per
// (job_id, name) and cascade-delete with the owning job.
type Screenshot struct {
	ID          int64     `json:"id"`
	JobID       int64     `json:"job_id"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mime_type"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	ImageData   string    `json:"image_data,omitempty"`
}

// ExtractScreenshots pulls the screenshot_data sequence out of a worker
// result. It returns the parsed entries and whether the key was present.
// Entries are parsed tolerantly; validation of name/data happens at save
// time so a malformed entry never blocks its siblings.
func ExtractScreenshots(result map[string]interface{}) ([]Screenshot, bool) {
	if result == nil {
		return nil, false
	}
	raw, ok := result[ScreenshotDataKey]
	if !ok {
		return nil, false
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, true
	}

	shots := make([]Screenshot, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		shot := Screenshot{
			Name:        stringField(entry, "name"),
			ImageData:   stringField(entry, "base64_data"),
			MimeType:    stringField(entry, "mime_type"),
			Description: stringField(entry, "description"),
		}
		if shot.MimeType == "" {
			shot.MimeType = "image/png"
		}
		shots = append(shots, shot)
	}
	return shots, true
}

// CloneWithoutScreenshots returns a shallow copy of the result with the
// screenshot_data key removed, so image payloads never land in the job row.
func CloneWithoutScreenshots(result map[string]interface{}) map[string]interface{} {
	clone := make(map[string]interface{}, len(result))
	for k, v := range result {
		if k == ScreenshotDataKey {
			continue
		}
		clone[k] = v
	}
	return clone
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
