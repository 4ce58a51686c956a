// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// FileRecord 定义了 files 表的 ORM 模型。
// 每一行记录一个已上传文件的元数据，StoragePath 指向对象存储中期望存在的 key。
type FileRecord struct {
	ID   string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name string `gorm:"type:varchar(255);not null" json:"name"`
	// StoragePath 允许为 NULL：尚未写入对象存储的记录不参与一致性比对。
	StoragePath *string   `gorm:"type:varchar(1024);index" json:"storagePath"`
	Size        int64     `gorm:"not null;default:0" json:"size"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FileRecord) TableName() string {
	return "files"
}

// Path 返回记录的存储路径，未设置时返回空串。
func (f FileRecord) Path() string {
	if f.StoragePath == nil {
		return ""
	}
	return *f.StoragePath
}
