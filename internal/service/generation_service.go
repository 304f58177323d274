package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"resume-forge/internal/config"
	"resume-forge/internal/model"
	"resume-forge/pkg/llm"
	"resume-forge/pkg/log"
)

// ErrEmptyGeneration 表示模型返回了空内容。
var ErrEmptyGeneration = errors.New("llm returned empty markup")

// GenerateKind 是生成请求的类型。
type GenerateKind string

const (
	GenerateCreate GenerateKind = "create"
	GenerateEdit   GenerateKind = "edit"
	GenerateRepair GenerateKind = "repair"
)

const repairDirective = "Fix syntax errors, preserve structure and content."

const repairTemperature = 0.2

// GenerateInput 是一次生成请求。Diagnostic 只在 repair 时使用。
type GenerateInput struct {
	Kind          GenerateKind
	DocKind       string
	Instruction   string
	Context       string
	Profile       *model.ProfileData
	CurrentMarkup string
	Diagnostic    string
}

// GenerationService 接口定义了文档生成操作。
type GenerationService interface {
	Generate(ctx context.Context, in GenerateInput) (string, error)
	// RepairMarkup 根据编译诊断修复标记文本。
	RepairMarkup(ctx context.Context, docKind, markup, diagnostic string) (string, error)
}

type generationService struct {
	llmClient llm.Client
	genCfg    config.LLMGenerationConfig
	maxDiag   int
}

// NewGenerationService 创建一个新的 GenerationService 实例。
func NewGenerationService(llmClient llm.Client, genCfg config.LLMGenerationConfig, maxDiagnosticLen int) GenerationService {
	if maxDiagnosticLen <= 0 {
		maxDiagnosticLen = 1500
	}
	return &generationService{llmClient: llmClient, genCfg: genCfg, maxDiag: maxDiagnosticLen}
}

func (s *generationService) RepairMarkup(ctx context.Context, docKind, markup, diagnostic string) (string, error) {
	return s.Generate(ctx, GenerateInput{
		Kind:          GenerateRepair,
		DocKind:       docKind,
		CurrentMarkup: markup,
		Diagnostic:    diagnostic,
	})
}

func (s *generationService) Generate(ctx context.Context, in GenerateInput) (string, error) {
	req := llm.Request{
		System:      systemPrompt(in.Kind, in.DocKind),
		Prompt:      s.buildPrompt(in),
		Temperature: s.genCfg.Temperature,
	}
	if in.Kind == GenerateRepair {
		req.Temperature = repairTemperature
	}

	log.Infof("[GenerationService] 调用模型生成, kind: %s, docKind: %s", in.Kind, in.DocKind)
	out, err := s.llmClient.Invoke(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to invoke llm: %w", err)
	}
	markup := strings.TrimSpace(llm.StripFence(out))
	if markup == "" {
		return "", ErrEmptyGeneration
	}
	return markup, nil
}

func systemPrompt(kind GenerateKind, docKind string) string {
	target := "a complete, compilable LaTeX resume document (from \\documentclass to \\end{document})"
	if docKind == model.ProjectKindEmail {
		target = "a complete plain-text email"
	}
	switch kind {
	case GenerateEdit:
		return "You edit " + target + ". Apply the user's instruction to the current document and return the FULL replacement document. Output only the document, no explanations."
	case GenerateRepair:
		return "You repair " + target + " that failed to compile. Return the FULL corrected document. Output only the document, no explanations."
	default:
		return "You write " + target + " using only facts from the candidate profile and reference material. Output only the document, no explanations."
	}
}

func (s *generationService) buildPrompt(in GenerateInput) string {
	var sb strings.Builder
	if in.Kind == GenerateRepair {
		sb.WriteString(RepairInstruction(in.Diagnostic, s.maxDiag))
		sb.WriteString("\n\nCurrent document:\n")
		sb.WriteString(in.CurrentMarkup)
		return sb.String()
	}

	if in.Profile != nil {
		if b, err := json.Marshal(in.Profile); err == nil {
			sb.WriteString("Candidate profile:\n")
			sb.Write(b)
			sb.WriteString("\n\n")
		}
	}
	if in.Context != "" {
		sb.WriteString("Reference material:\n<<REF>>\n")
		sb.WriteString(in.Context)
		sb.WriteString("\n<<END>>\n\n")
	}
	if in.Kind == GenerateEdit {
		sb.WriteString("Current document:\n")
		sb.WriteString(in.CurrentMarkup)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Instruction:\n")
	sb.WriteString(in.Instruction)
	return sb.String()
}

// RepairInstruction 把编译诊断截断到 maxLen 个字符后与固定的修复指令拼接。
func RepairInstruction(diagnostic string, maxLen int) string {
	d := []rune(strings.TrimSpace(diagnostic))
	if maxLen > 0 && len(d) > maxLen {
		d = d[:maxLen]
	}
	return "The compiler reported:\n" + string(d) + "\n\n" + repairDirective
}
