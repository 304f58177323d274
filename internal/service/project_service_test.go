package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-forge/internal/model"
	"resume-forge/internal/repair"
	"resume-forge/internal/repository"
	"resume-forge/pkg/compiler"
	"resume-forge/pkg/storage"
)

// markerCompiler 在 markup 含有 \broken 时报告编译错误。
type markerCompiler struct{}

func (markerCompiler) Compile(_ context.Context, markup string) ([]byte, error) {
	if strings.Contains(markup, `\broken`) {
		return nil, &compiler.CompileError{Diagnostic: "! Undefined control sequence."}
	}
	return []byte("%PDF-" + markup), nil
}

type fixingRepairer struct{}

func (fixingRepairer) RepairMarkup(_ context.Context, _, markup, _ string) (string, error) {
	return strings.ReplaceAll(markup, `\broken`, ""), nil
}

// controllerLoop 使用真实的控制器，但不做防抖。
type controllerLoop struct {
	deps        repair.Deps
	controllers map[string]*repair.Controller
	edits       int
}

func (l *controllerLoop) Get(id string) *repair.Controller {
	c, ok := l.controllers[id]
	if !ok {
		c = repair.NewController(id, l.deps, repair.Options{MaxAutoRepairs: 1})
		l.controllers[id] = c
	}
	return c
}

func (l *controllerLoop) NotifyEdit(string) { l.edits++ }

func newProjectFixture() (ProjectService, *memProjectRepo, *memStore, *controllerLoop) {
	projects := &memProjectRepo{projects: map[string]*model.Project{}}
	store := &memStore{objects: map[string][]byte{}}
	loop := &controllerLoop{
		deps:        repair.Deps{Compiler: markerCompiler{}, Repairer: fixingRepairer{}, Projects: projects, Artifacts: store},
		controllers: map[string]*repair.Controller{},
	}
	transcripts := &memTranscripts{messages: map[string][]model.ChatMessage{}}
	return NewProjectService(projects, transcripts, store, loop), projects, store, loop
}

func TestProjectService_Create(t *testing.T) {
	svc, _, _, _ := newProjectFixture()

	p, err := svc.Create(1, "  ", "")
	require.NoError(t, err)
	assert.Equal(t, model.ProjectKindResume, p.Kind)
	assert.Equal(t, "Untitled resume", p.Name)
	assert.NotEmpty(t, p.ID)

	_, err = svc.Create(1, "cover", "poem")
	assert.ErrorIs(t, err, ErrInvalidProjectKind)
}

func TestProjectService_UpdateMarkupSchedulesCompile(t *testing.T) {
	svc, projects, _, loop := newProjectFixture()
	p, err := svc.Create(1, "cv", model.ProjectKindResume)
	require.NoError(t, err)

	_, err = svc.UpdateMarkup(1, p.ID, `\documentclass{article}`)
	require.NoError(t, err)
	assert.Equal(t, 1, loop.edits)
	assert.Equal(t, `\documentclass{article}`, projects.projects[p.ID].Markup)

	_, err = svc.UpdateMarkup(2, p.ID, "hijack")
	assert.ErrorIs(t, err, repository.ErrProjectNotFound)
	assert.Equal(t, 1, loop.edits)
}

func TestProjectService_CompileRepairsAndStoresArtifact(t *testing.T) {
	ctx := context.Background()
	svc, projects, store, _ := newProjectFixture()
	p, err := svc.Create(1, "cv", model.ProjectKindResume)
	require.NoError(t, err)
	_, err = svc.UpdateMarkup(1, p.ID, `hello \broken world`)
	require.NoError(t, err)

	_, err = svc.Artifact(ctx, 1, p.ID)
	assert.ErrorIs(t, err, ErrNoArtifact)

	snap, err := svc.Compile(ctx, 1, p.ID)
	require.NoError(t, err)
	assert.Equal(t, repair.StateSuccess, snap.State)
	assert.Zero(t, snap.RetryCount)
	assert.Equal(t, "hello  world", projects.projects[p.ID].Markup)
	assert.Empty(t, projects.projects[p.ID].LastError)

	pdf, err := svc.Artifact(ctx, 1, p.ID)
	require.NoError(t, err)
	assert.Equal(t, store.objects[storage.ArtifactKey(p.ID)], pdf)

	_, err = svc.Repair(ctx, 1, p.ID)
	assert.ErrorIs(t, err, repair.ErrNotFailed)
}

func TestProjectService_OtherUsersProject(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newProjectFixture()
	p, err := svc.Create(1, "cv", "")
	require.NoError(t, err)

	_, err = svc.Compile(ctx, 2, p.ID)
	assert.ErrorIs(t, err, repository.ErrProjectNotFound)
	_, err = svc.CompileState(2, p.ID)
	assert.ErrorIs(t, err, repository.ErrProjectNotFound)
	_, _, err = svc.Subscribe(2, p.ID)
	assert.ErrorIs(t, err, repository.ErrProjectNotFound)
	_, err = svc.Messages(ctx, 2, p.ID)
	assert.ErrorIs(t, err, repository.ErrProjectNotFound)
}
