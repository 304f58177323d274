package repository

import (
	"errors"

	"gorm.io/gorm"

	"resume-forge/internal/model"
)

// ErrProjectNotFound 表示项目不存在或不属于当前用户。
var ErrProjectNotFound = errors.New("project not found")

// ProjectRepository 定义了对 projects 表的数据操作接口。
type ProjectRepository interface {
	Create(project *model.Project) error
	FindByID(id string) (*model.Project, error)
	FindByUser(userID uint) ([]model.Project, error)
	UpdateMarkup(id, markup string) error
	// UpdateCompileResult 记录最近一次编译结果，成功时 lastError 为空。
	UpdateCompileResult(id, artifactKey, lastError string) error
}

type projectRepository struct {
	db *gorm.DB
}

// NewProjectRepository 创建一个新的 ProjectRepository 实例。
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

func (r *projectRepository) Create(project *model.Project) error {
	return r.db.Create(project).Error
}

func (r *projectRepository) FindByID(id string) (*model.Project, error) {
	var p model.Project
	err := r.db.Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectRepository) FindByUser(userID uint) ([]model.Project, error) {
	var projects []model.Project
	err := r.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&projects).Error
	return projects, err
}

func (r *projectRepository) UpdateMarkup(id, markup string) error {
	return r.db.Model(&model.Project{}).Where("id = ?", id).Update("markup", markup).Error
}

func (r *projectRepository) UpdateCompileResult(id, artifactKey, lastError string) error {
	updates := map[string]interface{}{"last_error": lastError}
	if artifactKey != "" {
		updates["artifact_key"] = artifactKey
	}
	return r.db.Model(&model.Project{}).Where("id = ?", id).Updates(updates).Error
}
