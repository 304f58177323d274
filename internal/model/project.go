package model

import "time"

// 项目生成的文档类型
const (
	ProjectKindResume = "resume"
	ProjectKindEmail  = "email"
)

// Project 对应于 projects 表，一个项目持有一份可编辑的 markup 及最近一次编译结果。
type Project struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"userId"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Kind        string    `gorm:"type:varchar(16);not null;default:'resume'" json:"kind"`
	Markup      string    `gorm:"type:longtext" json:"markup"`
	ArtifactKey string    `gorm:"type:varchar(512)" json:"artifactKey"`
	LastError   string    `gorm:"type:text" json:"lastError"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Project) TableName() string {
	return "projects"
}
