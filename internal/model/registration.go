package model

import "time"

// RegistrationType 报名类型
type RegistrationType string

const (
	RegistrationIndividual RegistrationType = "individual"
	RegistrationTeamLeader RegistrationType = "team_leader"
	RegistrationTeamMember RegistrationType = "team_member"
)

// RegistrationStatus 报名状态
type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "active"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// Registration 报名记录，由外部报名服务维护，这里只读
type Registration struct {
	ID                 int64              `gorm:"primaryKey" json:"registration_id"`
	EventID            int64              `gorm:"not null;index:idx_registrations_event" json:"event_id"`
	RegistrationType   RegistrationType   `gorm:"type:varchar(16);not null;default:'individual'" json:"registration_type"`
	TeamRegistrationID *int64             `gorm:"index:idx_registrations_team" json:"team_registration_id,omitempty"`
	DisplayName        string             `gorm:"type:varchar(128);not null;default:''" json:"display_name"`
	Status             RegistrationStatus `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// TableName 指定表名
func (Registration) TableName() string {
	return "registrations"
}

// IsTeam 队长和队员都按团队处理
func (r *Registration) IsTeam() bool {
	return (r.RegistrationType == RegistrationTeamLeader || r.RegistrationType == RegistrationTeamMember) &&
		r.TeamRegistrationID != nil
}

func (r *Registration) IsActive() bool {
	return r.Status == "" || r.Status == RegistrationActive
}
