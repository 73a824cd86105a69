package model

import "time"

// UnitProgress 单个单元的出勤情况
type UnitProgress struct {
	UnitKey  string      `json:"unit_key,omitempty"`
	Label    string      `json:"label,omitempty"`
	Status   *MarkStatus `json:"status"`
	MarkedAt *time.Time  `json:"marked_at,omitempty"`
	Attended bool        `json:"attended"`
}

// ProgressSnapshot 从流水实时推导的进度，不落库
type ProgressSnapshot struct {
	RegistrationID    int64          `json:"registration_id"`
	EventID           int64          `json:"event_id"`
	StrategyType      StrategyType   `json:"strategy_type"`
	AttendedUnits     int            `json:"attended_units"`
	TotalUnits        int            `json:"total_units"`
	Percentage        int            `json:"percentage"`
	MinimumPercentage int            `json:"minimum_percentage"`
	MeetsCriteria     bool           `json:"meets_criteria"`
	Units             []UnitProgress `json:"units"`
}

// MarkResult 单条签到结果
type MarkResult struct {
	Mark     AttendanceMark    `json:"mark"`
	Progress *ProgressSnapshot `json:"progress,omitempty"`
}

// BulkFailure 批量签到中失败的一项
type BulkFailure struct {
	RegistrationID int64  `json:"registration_id"`
	Code           string `json:"code"`
	Reason         string `json:"reason"`
}

// BulkMarkResult 批量签到不是事务：成功与失败分别返回，顺序与请求一致
type BulkMarkResult struct {
	Successful []int64       `json:"successful"`
	Failed     []BulkFailure `json:"failed"`
}

// TeamMember 扫码后展示的成员及其当前签到状态
type TeamMember struct {
	Registration Registration    `json:"registration"`
	LatestMark   *AttendanceMark `json:"latest_mark"`
}

// IdentityResolution 身份凭证解析结果
type IdentityResolution struct {
	Registration Registration `json:"registration"`
	UnitKey      string       `json:"unit_key,omitempty"`
	TeamRoster   []TeamMember `json:"team_roster"`
}

// IssuedIdentity 签发的二维码载荷
type IssuedIdentity struct {
	RegistrationID int64      `json:"registration_id"`
	EventID        int64      `json:"event_id"`
	Token          string     `json:"token"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// UnitStats 单元维度统计
type UnitStats struct {
	UnitKey            string `json:"unit_key,omitempty"`
	Label              string `json:"label,omitempty"`
	Attended           int    `json:"attended"`
	Present            int    `json:"present"`
	Absent             int    `json:"absent"`
	Excused            int    `json:"excused"`
	Unmarked           int    `json:"unmarked"`
	TotalRegistrations int    `json:"total_registrations"`
}

// OverallStats 活动维度统计，每次从流水重新计算
type OverallStats struct {
	EventID              int64        `json:"event_id"`
	StrategyType         StrategyType `json:"strategy_type"`
	PerUnit              []UnitStats  `json:"per_unit"`
	RegistrationsOnTrack int          `json:"registrations_on_track"`
	RegistrationsTotal   int          `json:"registrations_total"`
}
