package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"resume-forge/internal/model"
	"resume-forge/internal/repair"
	"resume-forge/internal/repository"
	"resume-forge/pkg/log"
	"resume-forge/pkg/storage"
)

// ErrNoArtifact 表示项目还没有编译成功过。
var ErrNoArtifact = errors.New("project has no compiled artifact")

// ErrInvalidProjectKind 表示不支持的项目类型。
var ErrInvalidProjectKind = errors.New("project kind must be resume or email")

// CompileLoop 为项目提供编译-修复控制器。
type CompileLoop interface {
	Get(projectID string) *repair.Controller
	NotifyEdit(projectID string)
}

// ProjectService 接口定义了项目相关的业务操作。
type ProjectService interface {
	Create(userID uint, name, kind string) (*model.Project, error)
	List(userID uint) ([]model.Project, error)
	Get(userID uint, projectID string) (*model.Project, error)
	UpdateMarkup(userID uint, projectID, markup string) (*model.Project, error)
	Compile(ctx context.Context, userID uint, projectID string) (repair.Snapshot, error)
	Repair(ctx context.Context, userID uint, projectID string) (repair.Snapshot, error)
	CompileState(userID uint, projectID string) (repair.Snapshot, error)
	Subscribe(userID uint, projectID string) (<-chan repair.Event, func(), error)
	Artifact(ctx context.Context, userID uint, projectID string) ([]byte, error)
	Messages(ctx context.Context, userID uint, projectID string) ([]model.ChatMessage, error)
}

type projectService struct {
	projectRepo    repository.ProjectRepository
	transcriptRepo repository.TranscriptRepository
	store          storage.ObjectStore
	loop           CompileLoop
}

// NewProjectService 创建一个新的 ProjectService 实例。
func NewProjectService(projectRepo repository.ProjectRepository, transcriptRepo repository.TranscriptRepository, store storage.ObjectStore, loop CompileLoop) ProjectService {
	return &projectService{
		projectRepo:    projectRepo,
		transcriptRepo: transcriptRepo,
		store:          store,
		loop:           loop,
	}
}

func (s *projectService) Create(userID uint, name, kind string) (*model.Project, error) {
	if kind == "" {
		kind = model.ProjectKindResume
	}
	if kind != model.ProjectKindResume && kind != model.ProjectKindEmail {
		return nil, ErrInvalidProjectKind
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Untitled " + kind
	}
	p := &model.Project{ID: uuid.NewString(), UserID: userID, Name: name, Kind: kind}
	if err := s.projectRepo.Create(p); err != nil {
		return nil, err
	}
	log.Infof("[ProjectService] 项目已创建, ID: %s, userID: %d", p.ID, userID)
	return p, nil
}

func (s *projectService) List(userID uint) ([]model.Project, error) {
	return s.projectRepo.FindByUser(userID)
}

// Get 返回属于 userID 的项目，其他用户的项目按不存在处理。
func (s *projectService) Get(userID uint, projectID string) (*model.Project, error) {
	return findOwnedProject(s.projectRepo, userID, projectID)
}

func findOwnedProject(repo repository.ProjectRepository, userID uint, projectID string) (*model.Project, error) {
	p, err := repo.FindByID(projectID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, repository.ErrProjectNotFound
	}
	return p, nil
}

// UpdateMarkup 保存用户手动编辑的 markup，防抖后自动编译。
func (s *projectService) UpdateMarkup(userID uint, projectID, markup string) (*model.Project, error) {
	p, err := s.Get(userID, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.projectRepo.UpdateMarkup(p.ID, markup); err != nil {
		return nil, err
	}
	p.Markup = markup
	s.loop.NotifyEdit(p.ID)
	return p, nil
}

// Compile 立即编译。编译失败体现在返回的状态里，不作为错误返回。
func (s *projectService) Compile(ctx context.Context, userID uint, projectID string) (repair.Snapshot, error) {
	p, err := s.Get(userID, projectID)
	if err != nil {
		return repair.Snapshot{}, err
	}
	c := s.loop.Get(p.ID)
	if err := c.Compile(ctx); err != nil {
		log.Infow("[ProjectService] 编译未成功", "project_id", p.ID, "error", err)
	}
	return c.Snapshot(), nil
}

// Repair 由用户触发修复。项目不处于失败状态时返回 repair.ErrNotFailed。
func (s *projectService) Repair(ctx context.Context, userID uint, projectID string) (repair.Snapshot, error) {
	p, err := s.Get(userID, projectID)
	if err != nil {
		return repair.Snapshot{}, err
	}
	c := s.loop.Get(p.ID)
	if err := c.Repair(ctx); err != nil {
		if errors.Is(err, repair.ErrNotFailed) {
			return c.Snapshot(), err
		}
		log.Infow("[ProjectService] 手动修复未成功", "project_id", p.ID, "error", err)
	}
	return c.Snapshot(), nil
}

func (s *projectService) CompileState(userID uint, projectID string) (repair.Snapshot, error) {
	p, err := s.Get(userID, projectID)
	if err != nil {
		return repair.Snapshot{}, err
	}
	return s.loop.Get(p.ID).Snapshot(), nil
}

func (s *projectService) Subscribe(userID uint, projectID string) (<-chan repair.Event, func(), error) {
	p, err := s.Get(userID, projectID)
	if err != nil {
		return nil, nil, err
	}
	events, cancel := s.loop.Get(p.ID).Subscribe()
	return events, cancel, nil
}

func (s *projectService) Artifact(ctx context.Context, userID uint, projectID string) ([]byte, error) {
	p, err := s.Get(userID, projectID)
	if err != nil {
		return nil, err
	}
	if p.ArtifactKey == "" {
		return nil, ErrNoArtifact
	}
	return s.store.Get(ctx, p.ArtifactKey)
}

func (s *projectService) Messages(ctx context.Context, userID uint, projectID string) ([]model.ChatMessage, error) {
	p, err := s.Get(userID, projectID)
	if err != nil {
		return nil, err
	}
	return s.transcriptRepo.Get(ctx, p.ID)
}
