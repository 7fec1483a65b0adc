package model

import (
	"time"

	"gorm.io/datatypes"
)

type OutboxStatus string

const (
	OutboxInit        OutboxStatus = "INIT"
	OutboxSendFail    OutboxStatus = "SEND_FAIL"
	OutboxSendSuccess OutboxStatus = "SEND_SUCCESS"
	OutboxDead        OutboxStatus = "DEAD"
)

var outboxTransitions = map[OutboxStatus][]OutboxStatus{
	OutboxInit:     {OutboxSendSuccess, OutboxSendFail, OutboxDead},
	OutboxSendFail: {OutboxSendSuccess, OutboxSendFail, OutboxDead},
}

func (s OutboxStatus) Valid() bool {
	switch s {
	case OutboxInit, OutboxSendFail, OutboxSendSuccess, OutboxDead:
		return true
	}
	return false
}

func (s OutboxStatus) Terminal() bool {
	return s == OutboxSendSuccess || s == OutboxDead
}

func (s OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	for _, allowed := range outboxTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type OutboxMessage struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType string         `gorm:"type:varchar(100);not null" json:"eventType"`
	Payload   datatypes.JSON `gorm:"not null" json:"payload"`
	Status    OutboxStatus   `gorm:"type:varchar(20);not null;default:'INIT';index" json:"status"`
	TryCount  int            `gorm:"not null;default:0" json:"tryCount"`
	NextTryAt *time.Time     `json:"nextTryAt,omitempty"`
	LastError string         `json:"lastError,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
