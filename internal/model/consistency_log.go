package model

import "time"

// 检查类型
const (
	CheckTypeFull        = "full"
	CheckTypeIncremental = "incremental"
	CheckTypeSingle      = "single"
)

// 检查结果状态
const (
	CheckStatusSuccess = "success"
	CheckStatusWarning = "warning"
	CheckStatusError   = "error"
)

// ConsistencyLog 对应 consistency_check_logs 表，每次检查追加一行，不做更新。
type ConsistencyLog struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CheckType       string    `gorm:"type:varchar(16);not null" json:"checkType"`
	Status          string    `gorm:"type:varchar(16);not null" json:"status"`
	OrphanedRecords int       `gorm:"not null;default:0" json:"orphanedRecords"`
	OrphanedFiles   int       `gorm:"not null;default:0" json:"orphanedFiles"`
	ValidFiles      int       `gorm:"not null;default:0" json:"validFiles"`
	Details         string    `gorm:"type:text" json:"details"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ConsistencyLog) TableName() string {
	return "consistency_check_logs"
}
