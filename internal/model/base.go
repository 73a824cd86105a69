package model

import "time"

// BaseModel 可修改的配置类记录共用；签到流水只追加，不嵌入它
// 不做软删除：event_id 唯一索引要能直接 upsert
type BaseModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;default:now()" json:"updated_at"`
}
