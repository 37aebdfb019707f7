/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// JingleSlot persists the configuration of one instant-jingle button.
type JingleSlot struct {
	Slot      int           `gorm:"primaryKey;autoIncrement:false" json:"slot"`
	Source    string        `gorm:"type:varchar(512)" json:"source"`
	Label     string        `gorm:"type:varchar(50)" json:"label"`
	Color     string        `gorm:"type:varchar(20);default:'primary'" json:"color"`
	Volume    float64       `gorm:"not null" json:"volume"`
	Duration  time.Duration `json:"duration"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (JingleSlot) TableName() string {
	return "jingle_slots"
}
