package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"resume-forge/internal/model"
)

// ProfileRepository 定义了对 profiles 表的数据操作接口。
type ProfileRepository interface {
	// FindByUserID 返回用户画像，不存在时返回 nil, nil。
	FindByUserID(userID uint) (*model.Profile, error)
	// Save 整行写入（存在则覆盖）。
	Save(profile *model.Profile) error
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository 创建一个新的 ProfileRepository 实例。
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) FindByUserID(userID uint) (*model.Profile, error) {
	var p model.Profile
	err := r.db.Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepository) Save(profile *model.Profile) error {
	return r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(profile).Error
}
