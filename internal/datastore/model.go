// model.go this code defines the data model for the local entry store
package datastore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kartevonmorgen/kvmsync/internal/ofdb"
)

// StringList stores a list of strings as a JSON array in a single TEXT
// column, so the same model works on SQLite and MySQL.
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported type %T for StringList", value)
	}
}

// EntryRecord is one directory entry as persisted locally. The natural key
// is the directory's stable string ID; every other column is overwritten on
// each sighting.
type EntryRecord struct {
	ID           string `gorm:"primaryKey;type:varchar(64)"`
	Created      int64
	Version      int
	Title        string
	Description  string
	Lat          float64
	Lng          float64
	Street       string
	Zip          string
	City         string
	Country      string
	State        string
	ContactName  string
	Email        string
	Telephone    string
	Homepage     string
	OpeningHours string
	FoundedOn    string
	License      string
	ImageURL     string     `gorm:"column:image_url"`
	ImageLinkURL string     `gorm:"column:image_link_url"`
	Categories   StringList `gorm:"type:text"`
	Tags         StringList `gorm:"type:text"`
	Ratings      StringList `gorm:"type:text"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime"`
}

// TableName overrides the default pluralized name
func (EntryRecord) TableName() string {
	return "entries"
}

// entryAssignColumns lists every mutable column of EntryRecord, used by the
// bulk upsert's conflict clause. The primary key is never reassigned.
var entryAssignColumns = []string{
	"created", "version", "title", "description", "lat", "lng",
	"street", "zip", "city", "country", "state",
	"contact_name", "email", "telephone", "homepage",
	"opening_hours", "founded_on", "license",
	"image_url", "image_link_url",
	"categories", "tags", "ratings", "updated_at",
}

// NewEntryRecord converts a wire entry into its persisted form.
func NewEntryRecord(e *ofdb.Entry) EntryRecord {
	return EntryRecord{
		ID:           e.ID,
		Created:      e.Created,
		Version:      e.Version,
		Title:        e.Title,
		Description:  e.Description,
		Lat:          e.Lat,
		Lng:          e.Lng,
		Street:       e.Street,
		Zip:          e.Zip,
		City:         e.City,
		Country:      e.Country,
		State:        e.State,
		ContactName:  e.ContactName,
		Email:        e.Email,
		Telephone:    e.Telephone,
		Homepage:     e.Homepage,
		OpeningHours: e.OpeningHours,
		FoundedOn:    e.FoundedOn,
		License:      e.License,
		ImageURL:     e.ImageURL,
		ImageLinkURL: e.ImageLinkURL,
		Categories:   StringList(e.Categories),
		Tags:         StringList(e.Tags),
		Ratings:      StringList(e.Ratings),
	}
}

// ToEntry converts a persisted record back into its wire form.
func (r *EntryRecord) ToEntry() ofdb.Entry {
	return ofdb.Entry{
		ID:           r.ID,
		Created:      r.Created,
		Version:      r.Version,
		Title:        r.Title,
		Description:  r.Description,
		Lat:          r.Lat,
		Lng:          r.Lng,
		Street:       r.Street,
		Zip:          r.Zip,
		City:         r.City,
		Country:      r.Country,
		State:        r.State,
		ContactName:  r.ContactName,
		Email:        r.Email,
		Telephone:    r.Telephone,
		Homepage:     r.Homepage,
		OpeningHours: r.OpeningHours,
		FoundedOn:    r.FoundedOn,
		License:      r.License,
		ImageURL:     r.ImageURL,
		ImageLinkURL: r.ImageLinkURL,
		Categories:   []string(r.Categories),
		Tags:         []string(r.Tags),
		Ratings:      []string(r.Ratings),
	}
}

// assignFrom overwrites every mutable field from another record, leaving the
// primary key and UpdatedAt (maintained by GORM) alone.
func (r *EntryRecord) assignFrom(src *EntryRecord) {
	r.Created = src.Created
	r.Version = src.Version
	r.Title = src.Title
	r.Description = src.Description
	r.Lat = src.Lat
	r.Lng = src.Lng
	r.Street = src.Street
	r.Zip = src.Zip
	r.City = src.City
	r.Country = src.Country
	r.State = src.State
	r.ContactName = src.ContactName
	r.Email = src.Email
	r.Telephone = src.Telephone
	r.Homepage = src.Homepage
	r.OpeningHours = src.OpeningHours
	r.FoundedOn = src.FoundedOn
	r.License = src.License
	r.ImageURL = src.ImageURL
	r.ImageLinkURL = src.ImageLinkURL
	r.Categories = src.Categories
	r.Tags = src.Tags
	r.Ratings = src.Ratings
}

// SubscriptionRecord is one email subscription to entry changes inside a
// bounding box.
type SubscriptionRecord struct {
	ID               string `gorm:"primaryKey;type:varchar(36)"`
	Title            string
	Email            string `gorm:"index:idx_subscriptions_email"`
	LatMin           float64
	LonMin           float64
	LatMax           float64
	LonMax           float64
	Interval         string // daily, weekly, monthly
	SubscriptionType string // creation, update, tag_change
	Language         string `gorm:"type:varchar(8);default:en"`
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the default name
func (SubscriptionRecord) TableName() string {
	return "subscriptions"
}
