package model

import (
	"time"

	"gorm.io/gorm"

	"Attendly/pkg/errors"
)

// MarkStatus 签到状态
type MarkStatus string

const (
	MarkStatusPresent MarkStatus = "present"
	MarkStatusAbsent  MarkStatus = "absent"
	MarkStatusExcused MarkStatus = "excused"
)

func (s MarkStatus) Valid() bool {
	switch s {
	case MarkStatusPresent, MarkStatusAbsent, MarkStatusExcused:
		return true
	default:
		return false
	}
}

// VerificationMethod 核验方式
type VerificationMethod string

const (
	VerificationPhysical VerificationMethod = "physical"
	VerificationQR       VerificationMethod = "qr"
	VerificationManual   VerificationMethod = "manual"
)

func (m VerificationMethod) Valid() bool {
	switch m {
	case VerificationPhysical, VerificationQR, VerificationManual:
		return true
	default:
		return false
	}
}

// AttendanceMark 签到流水，只追加，不修改不删除；更正就是追加一条更新的记录
// ID 是写入序号，marked_at 相同时以 ID 大者为准
type AttendanceMark struct {
	ID                 int64              `gorm:"primaryKey;autoIncrement" json:"sequence"`
	PublicID           int64              `gorm:"not null;uniqueIndex" json:"mark_id,string"`
	EventID            int64              `gorm:"not null;index:idx_attendance_marks_event" json:"event_id"`
	RegistrationID     int64              `gorm:"not null;index:idx_attendance_marks_key,priority:1" json:"registration_id"`
	UnitKey            string             `gorm:"type:varchar(64);not null;default:'';index:idx_attendance_marks_key,priority:2" json:"unit_key,omitempty"` // single_mark 为空
	Status             MarkStatus         `gorm:"type:varchar(16);not null" json:"status"`
	VerificationMethod VerificationMethod `gorm:"type:varchar(16);not null" json:"verification_method"`
	MarkedBy           string             `gorm:"type:varchar(128);not null" json:"marked_by"`
	MarkedAt           time.Time          `gorm:"type:timestamptz;not null;index:idx_attendance_marks_key,priority:3" json:"marked_at"`
	Notes              string             `gorm:"type:text;not null;default:''" json:"notes,omitempty"`
	CreatedAt          time.Time          `gorm:"not null;default:now()" json:"created_at"`
}

// TableName 指定表名
func (AttendanceMark) TableName() string {
	return "attendance_marks"
}

// BeforeUpdate 流水不允许修改
func (m *AttendanceMark) BeforeUpdate(tx *gorm.DB) error {
	return errors.ErrLedgerImmutable
}

// BeforeDelete 流水不允许删除
func (m *AttendanceMark) BeforeDelete(tx *gorm.DB) error {
	return errors.ErrLedgerImmutable
}

// Supersedes 判断 m 是否比 other 更新：先比 marked_at，再比写入序号
func (m *AttendanceMark) Supersedes(other *AttendanceMark) bool {
	if other == nil {
		return true
	}
	if !m.MarkedAt.Equal(other.MarkedAt) {
		return m.MarkedAt.After(other.MarkedAt)
	}
	return m.ID > other.ID
}

// LatestMark 取一组记录中生效的那条，空集合返回 nil
func LatestMark(marks []AttendanceMark) *AttendanceMark {
	var latest *AttendanceMark
	for i := range marks {
		if marks[i].Supersedes(latest) {
			latest = &marks[i]
		}
	}
	return latest
}

// LatestByUnit 单个报名在各单元上的最新记录
type LatestByUnit map[string]AttendanceMark

// LatestByRegistration 活动维度：报名 -> 单元 -> 最新记录
type LatestByRegistration map[int64]LatestByUnit
