package model

import (
	"time"

	"gorm.io/gorm"

	"github.com/commutealarm/commutealarm/pkg/alarm"
)

type Member struct {
	ID                 int64  `gorm:"primaryKey;autoIncrement"`
	Nickname           string `gorm:"not null"`
	PreparationMinutes int    `gorm:"not null;default:0"`
	// AlarmDefaults holds the settings last used by the member.
	AlarmDefaults alarm.Settings `gorm:"embedded;embeddedPrefix:default_alarm_"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

type Place struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	MemberID  int64          `gorm:"not null;index" json:"memberId"`
	Name      string         `gorm:"not null" json:"name"`
	Address   string         `json:"address"`
	Longitude float64        `gorm:"not null" json:"longitude"`
	Latitude  float64        `gorm:"not null" json:"latitude"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
