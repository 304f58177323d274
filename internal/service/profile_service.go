package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"resume-forge/internal/model"
	"resume-forge/internal/repository"
	"resume-forge/pkg/llm"
	"resume-forge/pkg/log"
)

// ErrExtractionFailed 表示模型输出无法解析为画像。
var ErrExtractionFailed = errors.New("profile extraction failed")

// 语料少于该字符数时不调用模型。
const defaultMinProfileLen = 50

const extractionTemperature = 0.1

const profileSystemPrompt = `You extract a structured career profile from the user's documents.
Return ONLY a single JSON object with these optional keys:
fullName, email, phone, location, linkedin, website, headline, summary (strings),
skills, achievements, languages (arrays of strings),
experience (array of {company, title, location, startDate, endDate, highlights}),
education (array of {institution, degree, field, startDate, endDate}),
certifications (array of {name, issuer, date}),
projects (array of {name, description, technologies, url}).
Omit keys you cannot find in the documents. Do not invent facts.`

const profileSchema = `{
  "type": "object",
  "properties": {
    "fullName": {"type": ["string", "null"]},
    "email": {"type": ["string", "null"]},
    "phone": {"type": ["string", "null"]},
    "location": {"type": ["string", "null"]},
    "linkedin": {"type": ["string", "null"]},
    "website": {"type": ["string", "null"]},
    "headline": {"type": ["string", "null"]},
    "summary": {"type": ["string", "null"]},
    "skills": {"type": ["array", "null"], "items": {"type": "string"}},
    "achievements": {"type": ["array", "null"], "items": {"type": "string"}},
    "languages": {"type": ["array", "null"], "items": {"type": "string"}},
    "experience": {"type": ["array", "null"], "items": {"type": "object"}},
    "education": {"type": ["array", "null"], "items": {"type": "object"}},
    "certifications": {"type": ["array", "null"], "items": {"type": "object"}},
    "projects": {"type": ["array", "null"], "items": {"type": "object"}}
  }
}`

// ProfileService 接口定义了用户画像相关的业务操作。
type ProfileService interface {
	Get(userID uint) (*model.Profile, error)
	// Extract 从用户的全部文档中抽取画像。语料不足时返回 nil patch，不调用模型。
	Extract(ctx context.Context, userID uint) (*model.ProfilePatch, string, error)
	// Refresh 重新抽取并合并画像。语料不足时保留现有画像，可能返回 nil。
	Refresh(ctx context.Context, userID uint) (*model.Profile, error)
	Update(userID uint, patch model.ProfilePatch) (*model.Profile, error)
}

type profileService struct {
	docRepo     repository.DocumentRepository
	profileRepo repository.ProfileRepository
	llmClient   llm.Client
	minLen      int
	locks       sync.Map // userID -> *sync.Mutex
}

// NewProfileService 创建一个新的 ProfileService 实例。
func NewProfileService(docRepo repository.DocumentRepository, profileRepo repository.ProfileRepository, llmClient llm.Client, minLen int) ProfileService {
	if minLen <= 0 {
		minLen = defaultMinProfileLen
	}
	return &profileService{
		docRepo:     docRepo,
		profileRepo: profileRepo,
		llmClient:   llmClient,
		minLen:      minLen,
	}
}

func (s *profileService) lock(userID uint) func() {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *profileService) Get(userID uint) (*model.Profile, error) {
	return s.profileRepo.FindByUserID(userID)
}

func (s *profileService) Extract(ctx context.Context, userID uint) (*model.ProfilePatch, string, error) {
	corpus, textLen, err := s.buildCorpus(userID)
	if err != nil {
		return nil, "", err
	}
	if textLen < s.minLen {
		log.Infof("[ProfileService] 文档内容不足(%d < %d 字符)，跳过画像抽取, userID: %d", textLen, s.minLen, userID)
		return nil, corpus, nil
	}

	log.Infof("[ProfileService] 开始抽取用户画像, userID: %d, 语料长度: %d", userID, textLen)
	raw, err := s.llmClient.Invoke(ctx, llm.Request{
		System:      profileSystemPrompt,
		Prompt:      corpus,
		Temperature: extractionTemperature,
		JSON:        true,
	})
	if err != nil {
		return nil, corpus, fmt.Errorf("failed to invoke llm: %w", err)
	}

	var patch model.ProfilePatch
	if err := llm.DecodeJSON(raw, profileSchema, &patch); err != nil {
		log.Warnw("[ProfileService] 模型输出无法解析为画像", "user_id", userID, "error", err)
		return nil, corpus, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	return &patch, corpus, nil
}

// buildCorpus 按文档创建时间倒序拼接全部切块，每个文档前加上文件名标签。
// 返回的长度只统计切块文本，不含标签。
func (s *profileService) buildCorpus(userID uint) (string, int, error) {
	docs, err := s.docRepo.FindByUser(userID)
	if err != nil {
		return "", 0, fmt.Errorf("failed to list documents: %w", err)
	}
	ids := make([]string, 0, len(docs))
	names := make(map[string]string, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
		names[d.ID] = d.FileName
	}
	chunks, err := s.docRepo.FindChunks(ids)
	if err != nil {
		return "", 0, fmt.Errorf("failed to load chunks: %w", err)
	}

	var sb strings.Builder
	textLen := 0
	current := ""
	for _, c := range chunks {
		if c.DocumentID != current {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString("=== " + names[c.DocumentID] + " ===\n")
			current = c.DocumentID
		} else {
			sb.WriteString("\n")
		}
		sb.WriteString(c.TextContent)
		textLen += utf8.RuneCountInString(c.TextContent)
	}
	return sb.String(), textLen, nil
}

func (s *profileService) Refresh(ctx context.Context, userID uint) (*model.Profile, error) {
	unlock := s.lock(userID)
	defer unlock()

	existing, err := s.profileRepo.FindByUserID(userID)
	if err != nil {
		return nil, err
	}
	patch, corpus, err := s.Extract(ctx, userID)
	if err != nil {
		return nil, err
	}
	if patch == nil {
		// 语料不足时保留已有字段，但原文只保留剩余文档的内容
		if existing == nil || existing.RawText == corpus {
			return existing, nil
		}
		existing.RawText = corpus
		if err := s.profileRepo.Save(existing); err != nil {
			return nil, fmt.Errorf("failed to save profile: %w", err)
		}
		return existing, nil
	}

	merged := model.MergeProfile(existing, userID, *patch)
	merged.RawText = corpus
	if err := s.profileRepo.Save(merged); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	log.Infof("[ProfileService] 用户画像已更新, userID: %d", userID)
	return merged, nil
}

func (s *profileService) Update(userID uint, patch model.ProfilePatch) (*model.Profile, error) {
	unlock := s.lock(userID)
	defer unlock()

	existing, err := s.profileRepo.FindByUserID(userID)
	if err != nil {
		return nil, err
	}
	merged := model.MergeProfile(existing, userID, patch)
	if err := s.profileRepo.Save(merged); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return merged, nil
}
