package db

import (
	"fmt"
	"strings"
	"time"
)

// Event maps the events table. One row per aggregated event listing; rows from
// different sources describing the same occurrence are folded together by the
// dedup package.
type Event struct {
	EventID           int64      `gorm:"column:event_id;primaryKey;autoIncrement"`
	EventUUID         string     `gorm:"column:event_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Title             string     `gorm:"column:title;type:text;not null"`
	Description       string     `gorm:"column:description;type:text;not null;default:''"`
	StartTime         time.Time  `gorm:"column:start_time;type:timestamptz;not null"`
	EndTime           *time.Time `gorm:"column:end_time;type:timestamptz"`
	Location          *string    `gorm:"column:location;type:text"`
	SourceURL         *string    `gorm:"column:source_url;type:text"`
	SourceName        string     `gorm:"column:source_name;type:text;not null;default:''"`
	Language          *string    `gorm:"column:language;type:text"`
	CreatedAt         *time.Time `gorm:"column:created_at;type:timestamptz"`
	FetchedAt         *time.Time `gorm:"column:fetched_at;type:timestamptz"`
	Capacity          *int       `gorm:"column:capacity;type:integer"`
	SpotsLeft         *int       `gorm:"column:spots_left;type:integer"`
	RegistrationOpens *time.Time `gorm:"column:registration_opens;type:timestamptz"`
	RegistrationURL   *string    `gorm:"column:registration_url;type:text"`
	Food              *string    `gorm:"column:food;type:text"`
	Attachment        *string    `gorm:"column:attachment;type:text"`
	Author            *string    `gorm:"column:author;type:text"`
}

func (Event) TableName() string { return "events" }

// Summary is the one-line rendering used by the list and fetch commands.
func (e Event) Summary() string {
	parts := []string{fmt.Sprintf("%s - %s", e.Title, e.StartTime.Format("2006-01-02 15:04"))}
	if e.Location != nil && strings.TrimSpace(*e.Location) != "" {
		parts = append(parts, "at "+*e.Location)
	}
	if e.Capacity != nil && e.SpotsLeft != nil {
		parts = append(parts, fmt.Sprintf("(%d/%d spots available)", *e.SpotsLeft, *e.Capacity))
	} else if e.Capacity != nil {
		parts = append(parts, fmt.Sprintf("(capacity: %d)", *e.Capacity))
	}
	return strings.Join(parts, " ")
}

// Detailed is the multi-line rendering used by the show command.
func (e Event) Detailed() string {
	lines := []string{
		strings.Repeat("-", 80),
		"Title: " + e.Title,
		"Start: " + e.StartTime.Format("2006-01-02 15:04"),
	}
	if e.EndTime != nil {
		lines = append(lines, "End: "+e.EndTime.Format("2006-01-02 15:04"))
	} else {
		lines = append(lines, "End: not specified")
	}
	lines = append(lines, "Location: "+orUnset(e.Location))
	if e.SourceName != "" {
		lines = append(lines, "Source: "+e.SourceName)
	} else {
		lines = append(lines, "Source: unknown")
	}
	lines = append(lines, "URL: "+orUnset(e.SourceURL))
	if e.Author != nil {
		lines = append(lines, "Author: "+*e.Author)
	}
	if e.Capacity != nil {
		lines = append(lines, fmt.Sprintf("Capacity: %d", *e.Capacity))
	}
	if e.SpotsLeft != nil {
		lines = append(lines, fmt.Sprintf("Spots left: %d", *e.SpotsLeft))
	}
	if e.Food != nil {
		lines = append(lines, "Food: "+*e.Food)
	}
	if e.RegistrationOpens != nil {
		lines = append(lines, "Registration opens: "+e.RegistrationOpens.Format("2006-01-02 15:04"))
	}
	if e.RegistrationURL != nil && (e.SourceURL == nil || *e.RegistrationURL != *e.SourceURL) {
		lines = append(lines, "Registration URL: "+*e.RegistrationURL)
	}
	if e.Attachment != nil {
		lines = append(lines, "Attachment: "+*e.Attachment)
	}
	if strings.TrimSpace(e.Description) != "" {
		lines = append(lines, "", "Description:", e.Description)
	}
	return strings.Join(lines, "\n")
}

func orUnset(value *string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return "not specified"
	}
	return *value
}

func autoMigrateModels() []any {
	return []any{
		&Event{},
	}
}
