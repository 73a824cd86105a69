package model

// MarkRecordedMessage 签到写入流水后发出的事件，只作提示，以流水为准
type MarkRecordedMessage struct {
	MessageID          string             `json:"message_id"` // 消息唯一ID，用于幂等性检查
	MarkID             int64              `json:"mark_id,string"`
	Sequence           int64              `json:"sequence"`
	EventID            int64              `json:"event_id"`
	RegistrationID     int64              `json:"registration_id"`
	UnitKey            string             `json:"unit_key,omitempty"`
	Status             MarkStatus         `json:"status"`
	VerificationMethod VerificationMethod `json:"verification_method"`
	MarkedBy           string             `json:"marked_by"`
	MarkedAt           string             `json:"marked_at"`
}

// CriteriaMetMessage 报名首次达到出勤标准，下游（证书、通知）消费
type CriteriaMetMessage struct {
	MessageID         string `json:"message_id"`
	EventID           int64  `json:"event_id"`
	RegistrationID    int64  `json:"registration_id"`
	AttendedUnits     int    `json:"attended_units"`
	TotalUnits        int    `json:"total_units"`
	Percentage        int    `json:"percentage"`
	MinimumPercentage int    `json:"minimum_percentage"`
	OccurredAt        string `json:"occurred_at"`
}
