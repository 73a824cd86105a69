package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"Attendly/pkg/errors"
	"Attendly/utils"
)

// StrategyType 签到策略，封闭枚举
type StrategyType string

const (
	StrategySingleMark   StrategyType = "single_mark"   // 整场活动只签一次
	StrategySessionBased StrategyType = "session_based" // 按场次签到
	StrategyDayBased     StrategyType = "day_based"     // 按天签到
)

func (t StrategyType) Valid() bool {
	switch t {
	case StrategySingleMark, StrategySessionBased, StrategyDayBased:
		return true
	default:
		return false
	}
}

// MultiUnit single_mark 之外的策略都需要非空的 units
func (t StrategyType) MultiUnit() bool {
	return t == StrategySessionBased || t == StrategyDayBased
}

// Unit 一个可签到的单元（一个场次或一天）
type Unit struct {
	Key      string     `json:"key"`
	Label    string     `json:"label,omitempty"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
}

// DefaultAttendedStatuses 默认计入出勤的状态
var DefaultAttendedStatuses = []MarkStatus{MarkStatusPresent, MarkStatusExcused}

// Criteria 通过标准
type Criteria struct {
	MinimumPercentage int          `json:"minimum_percentage"`
	AttendedStatuses  []MarkStatus `json:"attended_statuses,omitempty"`
}

// Counts 判断某个状态是否计入出勤
func (c Criteria) Counts(status MarkStatus) bool {
	statuses := c.AttendedStatuses
	if len(statuses) == 0 {
		statuses = DefaultAttendedStatuses
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// StrategyConfig 一个活动生效中的签到策略；开始签到后不可变
type StrategyConfig struct {
	EventID      int64        `json:"event_id"`
	StrategyType StrategyType `json:"strategy_type"`
	Units        []Unit       `json:"units"`
	Criteria     Criteria     `json:"criteria"`
	LockedAt     *time.Time   `json:"locked_at,omitempty"`
}

// Validate 校验策略结构，返回的错误都包装自 errors.StrategyInvalid
func (s *StrategyConfig) Validate() error {
	if !s.StrategyType.Valid() {
		return errors.Wrap(errors.StrategyInvalid, "unknown strategy type %q", s.StrategyType)
	}

	if !s.StrategyType.MultiUnit() {
		if len(s.Units) > 0 {
			return errors.Wrap(errors.StrategyInvalid, "single_mark must not define units")
		}
	} else {
		if len(s.Units) == 0 {
			return errors.Wrap(errors.StrategyInvalid, "%s requires at least one unit", s.StrategyType)
		}
		if s.Criteria.MinimumPercentage < 0 || s.Criteria.MinimumPercentage > 100 {
			return errors.Wrap(errors.StrategyInvalid, "minimum_percentage %d out of range [0,100]", s.Criteria.MinimumPercentage)
		}
	}

	seen := make(map[string]struct{}, len(s.Units))
	for i, u := range s.Units {
		if u.Key == "" {
			return errors.Wrap(errors.StrategyInvalid, "unit #%d has an empty key", i)
		}
		if _, dup := seen[u.Key]; dup {
			return errors.Wrap(errors.StrategyInvalid, "duplicate unit key %q", u.Key)
		}
		seen[u.Key] = struct{}{}

		if s.StrategyType == StrategyDayBased && !utils.IsDate(u.Key) {
			return errors.Wrap(errors.StrategyInvalid, "day unit key %q is not a %s date", u.Key, utils.DateLayout)
		}
		if u.StartsAt != nil && u.EndsAt != nil && !u.StartsAt.Before(*u.EndsAt) {
			return errors.Wrap(errors.StrategyInvalid, "unit %q ends before it starts", u.Key)
		}
	}

	for _, st := range s.Criteria.AttendedStatuses {
		if !st.Valid() {
			return errors.Wrap(errors.StrategyInvalid, "unknown attended status %q", st)
		}
	}

	return nil
}

// UnitKeys 需要折叠的单元键；single_mark 只有一个隐式单元（空键）
func (s *StrategyConfig) UnitKeys() []string {
	if !s.StrategyType.MultiUnit() {
		return []string{""}
	}
	keys := make([]string, len(s.Units))
	for i, u := range s.Units {
		keys[i] = u.Key
	}
	return keys
}

// FindUnit 按键查找单元；single_mark 的隐式单元返回空 Unit
func (s *StrategyConfig) FindUnit(key string) (Unit, bool) {
	if !s.StrategyType.MultiUnit() {
		return Unit{}, key == ""
	}
	for _, u := range s.Units {
		if u.Key == key {
			return u, true
		}
	}
	return Unit{}, false
}

// CheckUnitKey 校验一次签到携带的单元键
func (s *StrategyConfig) CheckUnitKey(key string) error {
	if !s.StrategyType.MultiUnit() {
		if key != "" {
			return errors.Wrap(errors.UnitKeyNotAllowed, "got %q", key)
		}
		return nil
	}
	if key == "" {
		return errors.Wrap(errors.UnitKeyRequired, "strategy %s", s.StrategyType)
	}
	if _, ok := s.FindUnit(key); !ok {
		return errors.Wrap(errors.UnknownUnit, "unit %q", key)
	}
	return nil
}

// Clone 深拷贝，缓存与内存存储返回副本，调用方修改不会影响原值
func (s *StrategyConfig) Clone() *StrategyConfig {
	c := *s
	if s.Units != nil {
		c.Units = make([]Unit, len(s.Units))
		copy(c.Units, s.Units)
	}
	if s.Criteria.AttendedStatuses != nil {
		c.Criteria.AttendedStatuses = make([]MarkStatus, len(s.Criteria.AttendedStatuses))
		copy(c.Criteria.AttendedStatuses, s.Criteria.AttendedStatuses)
	}
	if s.LockedAt != nil {
		t := *s.LockedAt
		c.LockedAt = &t
	}
	return &c
}

func (s *StrategyConfig) TotalUnits() int {
	if !s.StrategyType.MultiUnit() {
		return 1
	}
	return len(s.Units)
}

// EventAttendanceStrategy 每个活动一条策略记录
type EventAttendanceStrategy struct {
	BaseModel
	EventID           int64          `gorm:"not null;uniqueIndex" json:"event_id"`
	StrategyType      string         `gorm:"type:varchar(32);not null" json:"strategy_type"`
	Units             datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"units"`
	MinimumPercentage int            `gorm:"not null;default:0" json:"minimum_percentage"`
	AttendedStatuses  datatypes.JSON `gorm:"type:jsonb" json:"attended_statuses"`
	LockedAt          *time.Time     `gorm:"type:timestamptz" json:"locked_at,omitempty"`
}

// TableName 指定表名
func (EventAttendanceStrategy) TableName() string {
	return "event_attendance_strategies"
}

// NewStrategyRecord 把策略转成持久化记录
func NewStrategyRecord(cfg *StrategyConfig) (*EventAttendanceStrategy, error) {
	units := cfg.Units
	if units == nil {
		units = []Unit{}
	}
	unitsJSON, err := json.Marshal(units)
	if err != nil {
		return nil, fmt.Errorf("failed to encode units: %w", err)
	}

	var statusesJSON datatypes.JSON
	if len(cfg.Criteria.AttendedStatuses) > 0 {
		statusesJSON, err = json.Marshal(cfg.Criteria.AttendedStatuses)
		if err != nil {
			return nil, fmt.Errorf("failed to encode attended statuses: %w", err)
		}
	}

	return &EventAttendanceStrategy{
		EventID:           cfg.EventID,
		StrategyType:      string(cfg.StrategyType),
		Units:             unitsJSON,
		MinimumPercentage: cfg.Criteria.MinimumPercentage,
		AttendedStatuses:  statusesJSON,
		LockedAt:          cfg.LockedAt,
	}, nil
}

// ToConfig 解码持久化记录；JSON 损坏同样视为策略无效
func (r *EventAttendanceStrategy) ToConfig() (*StrategyConfig, error) {
	cfg := &StrategyConfig{
		EventID:      r.EventID,
		StrategyType: StrategyType(r.StrategyType),
		Criteria:     Criteria{MinimumPercentage: r.MinimumPercentage},
		LockedAt:     r.LockedAt,
	}

	if len(r.Units) > 0 {
		if err := json.Unmarshal(r.Units, &cfg.Units); err != nil {
			return nil, errors.Wrap(errors.StrategyInvalid, "units column: %v", err)
		}
	}
	if len(r.AttendedStatuses) > 0 && string(r.AttendedStatuses) != "null" {
		if err := json.Unmarshal(r.AttendedStatuses, &cfg.Criteria.AttendedStatuses); err != nil {
			return nil, errors.Wrap(errors.StrategyInvalid, "attended_statuses column: %v", err)
		}
	}

	return cfg, nil
}
