package ofdb

import (
	"encoding/json"

	"github.com/kartevonmorgen/kvmsync/internal/errors"
)

// Entry is a geotagged directory entry as returned by the OFDB API. The ID is
// the natural key: globally unique and stable across versions.
type Entry struct {
	ID          string  `json:"id"`
	Created     int64   `json:"created"` // creation time as unix seconds
	Version     int     `json:"version"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`

	Street       string `json:"street,omitempty"`
	Zip          string `json:"zip,omitempty"`
	City         string `json:"city,omitempty"`
	Country      string `json:"country,omitempty"`
	State        string `json:"state,omitempty"`
	ContactName  string `json:"contact_name,omitempty"`
	Email        string `json:"email,omitempty"`
	Telephone    string `json:"telephone,omitempty"`
	Homepage     string `json:"homepage,omitempty"`
	OpeningHours string `json:"opening_hours,omitempty"`
	FoundedOn    string `json:"founded_on,omitempty"`

	License      string   `json:"license"`
	ImageURL     string   `json:"image_url,omitempty"`
	ImageLinkURL string   `json:"image_link_url,omitempty"`
	Categories   []string `json:"categories"`
	Tags         []string `json:"tags"`
	Ratings      []string `json:"ratings,omitempty"`
}

// SearchEntry is the reduced entry shape returned by search requests.
type SearchEntry struct {
	ID          string   `json:"id"`
	Status      string   `json:"status,omitempty"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// SearchResult is the response to one search request: the entries visible
// inside the requested bounding box and those just outside it.
type SearchResult struct {
	Visible   []SearchEntry `json:"visible"`
	Invisible []SearchEntry `json:"invisible"`
}

// decodeEntries unmarshals a JSON array of entries and checks the fields the
// pipeline cannot work without. A malformed payload fails the whole batch;
// per-entry isolation is deliberately not attempted.
func decodeEntries(raw json.RawMessage) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.New(err).
			Component("ofdb").
			Category(errors.CategoryDecode).
			Context("payload_bytes", len(raw)).
			Build()
	}
	for i := range entries {
		if entries[i].ID == "" {
			return nil, errors.Newf("entry %d has no id", i).
				Component("ofdb").
				Category(errors.CategoryDecode).
				Build()
		}
	}
	return entries, nil
}

// DeduplicateByID removes duplicate entries based on ID, keeping only the
// first occurrence.
func DeduplicateByID(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	unique := make([]Entry, 0, len(entries))
	for i := range entries {
		if _, ok := seen[entries[i].ID]; ok {
			continue
		}
		seen[entries[i].ID] = struct{}{}
		unique = append(unique, entries[i])
	}
	return unique
}
