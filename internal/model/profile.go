package model

import (
	"time"

	"gorm.io/datatypes"
)

// ExperienceEntry 是一段工作经历。
type ExperienceEntry struct {
	Company    string   `json:"company"`
	Title      string   `json:"title"`
	Location   string   `json:"location,omitempty"`
	StartDate  string   `json:"startDate,omitempty"`
	EndDate    string   `json:"endDate,omitempty"`
	Highlights []string `json:"highlights,omitempty"`
}

// EducationEntry 是一段教育经历。
type EducationEntry struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree,omitempty"`
	Field       string `json:"field,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
}

// CertificationEntry 是一项证书。
type CertificationEntry struct {
	Name   string `json:"name"`
	Issuer string `json:"issuer,omitempty"`
	Date   string `json:"date,omitempty"`
}

// ProjectEntry 是一个项目经历。
type ProjectEntry struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	URL          string   `json:"url,omitempty"`
}

// ProfileData 是用户画像的结构化内容。
type ProfileData struct {
	FullName       string               `json:"fullName"`
	Email          string               `json:"email"`
	Phone          string               `json:"phone"`
	Location       string               `json:"location"`
	LinkedIn       string               `json:"linkedin"`
	Website        string               `json:"website"`
	Headline       string               `json:"headline"`
	Summary        string               `json:"summary"`
	Skills         []string             `json:"skills"`
	Experience     []ExperienceEntry    `json:"experience"`
	Education      []EducationEntry     `json:"education"`
	Certifications []CertificationEntry `json:"certifications"`
	Projects       []ProjectEntry       `json:"projects"`
	Achievements   []string             `json:"achievements"`
	Languages      []string             `json:"languages"`
}

// Profile 对应于 profiles 表，每个用户最多一行。
// RawText 只由文档抽取流程写入，手动编辑不会覆盖它。
type Profile struct {
	UserID    uint                            `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	Data      datatypes.JSONType[ProfileData] `gorm:"type:json" json:"data"`
	RawText   string                          `gorm:"type:longtext" json:"-"`
	UpdatedAt time.Time                       `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Profile) TableName() string {
	return "profiles"
}

// ProfilePatch 是一次部分更新。字段为 nil 表示调用方没有提供该字段，
// 非 nil（包括空字符串和空数组）表示显式赋值。
type ProfilePatch struct {
	FullName       *string               `json:"fullName,omitempty"`
	Email          *string               `json:"email,omitempty"`
	Phone          *string               `json:"phone,omitempty"`
	Location       *string               `json:"location,omitempty"`
	LinkedIn       *string               `json:"linkedin,omitempty"`
	Website        *string               `json:"website,omitempty"`
	Headline       *string               `json:"headline,omitempty"`
	Summary        *string               `json:"summary,omitempty"`
	Skills         *[]string             `json:"skills,omitempty"`
	Experience     *[]ExperienceEntry    `json:"experience,omitempty"`
	Education      *[]EducationEntry     `json:"education,omitempty"`
	Certifications *[]CertificationEntry `json:"certifications,omitempty"`
	Projects       *[]ProjectEntry       `json:"projects,omitempty"`
	Achievements   *[]string             `json:"achievements,omitempty"`
	Languages      *[]string             `json:"languages,omitempty"`
}

func assign[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// MergeProfile 把 patch 合并到 existing 上并返回新的 Profile，不修改 existing。
// RawText 始终保留 existing 的值。
func MergeProfile(existing *Profile, userID uint, patch ProfilePatch) *Profile {
	merged := &Profile{UserID: userID}
	var data ProfileData
	if existing != nil {
		merged.RawText = existing.RawText
		merged.UpdatedAt = existing.UpdatedAt
		data = existing.Data.Data()
	}

	assign(&data.FullName, patch.FullName)
	assign(&data.Email, patch.Email)
	assign(&data.Phone, patch.Phone)
	assign(&data.Location, patch.Location)
	assign(&data.LinkedIn, patch.LinkedIn)
	assign(&data.Website, patch.Website)
	assign(&data.Headline, patch.Headline)
	assign(&data.Summary, patch.Summary)
	assign(&data.Skills, patch.Skills)
	assign(&data.Experience, patch.Experience)
	assign(&data.Education, patch.Education)
	assign(&data.Certifications, patch.Certifications)
	assign(&data.Projects, patch.Projects)
	assign(&data.Achievements, patch.Achievements)
	assign(&data.Languages, patch.Languages)

	merged.Data = datatypes.NewJSONType(data)
	return merged
}

// IsEmpty 判断 patch 是否没有任何字段。
func (p ProfilePatch) IsEmpty() bool {
	return p == ProfilePatch{}
}
