package models

import "time"

// TeamSetting holds a reviewer's capacity, stored in 'moderation_team_settings'.
type TeamSetting struct {
	UserID                 int64      `db:"user_id" json:"user_id"`
	OrgID                  int64      `db:"org_id" json:"org_id"`
	MaxConcurrentItems     int        `db:"max_concurrent_items" json:"max_concurrent_items"`
	CurrentLoad            int        `db:"current_load" json:"current_load"`
	IsAvailable            bool       `db:"is_available" json:"is_available"`
	ContentSpecializations StringList `db:"content_specializations" json:"content_specializations"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// HasCapacity reports whether the reviewer may take another item.
func (s *TeamSetting) HasCapacity() bool {
	return s.IsAvailable && s.CurrentLoad < s.MaxConcurrentItems
}

// Handles reports whether the reviewer may be offered content of the given type.
// An empty specialization list accepts every type.
func (s *TeamSetting) Handles(contentType string) bool {
	if len(s.ContentSpecializations) == 0 {
		return true
	}
	for _, t := range s.ContentSpecializations {
		if t == contentType {
			return true
		}
	}
	return false
}

// UpsertTeamSettingInput represents input for creating or updating a team setting
type UpsertTeamSettingInput struct {
	OrgID                  int64    `json:"org_id" binding:"required"`
	MaxConcurrentItems     int      `json:"max_concurrent_items" binding:"required,min=1"`
	IsAvailable            *bool    `json:"is_available"`
	ContentSpecializations []string `json:"content_specializations"`
}
