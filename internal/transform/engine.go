package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/text-forge/internal/jobapi"
	"github.com/yourusername/text-forge/internal/logging"
)

// Input は1ソース分の処理要求です。
type Input struct {
	JobID         string
	Kind          jobapi.Kind
	SourceID      string
	Text          string
	Configuration map[string]any
}

// Engine はジョブ種別ごとの処理を行い、結果要素を返します。
type Engine interface {
	Run(ctx context.Context, in Input) (any, error)
}

// Service は Engine の実装です。検出は辞書ベース、変換は LLM で行います。
type Service struct {
	llm    Generator
	model  string
	logger *zap.Logger
}

// NewService は Service を作成します。
func NewService(llm Generator, model string, logger *zap.Logger) *Service {
	return &Service{
		llm:    llm,
		model:  model,
		logger: logging.OrNop(logger).Named("transform"),
	}
}

// Run はジョブ種別に応じた処理を実行します。
func (s *Service) Run(ctx context.Context, in Input) (any, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, newError(CodeInvalidInput, "source text is empty", nil)
	}

	log := s.logger.With(zap.String("job_id", in.JobID), zap.String("source_id", in.SourceID))
	log.Debug("running transform", zap.String("kind", string(in.Kind)))

	switch in.Kind {
	case jobapi.KindMadhyamakaDetect:
		return Detect(in.SourceID, in.Text), nil
	case jobapi.KindPersonaTransform:
		return s.runPersona(ctx, in)
	case jobapi.KindMadhyamakaTransform:
		return s.runMadhyamakaTransform(ctx, in)
	case jobapi.KindPerspectives:
		return s.runPerspectives(ctx, in)
	default:
		return nil, newError(CodeUnsupported, fmt.Sprintf("unsupported job type: %s", in.Kind), nil)
	}
}

func (s *Service) runPersona(ctx context.Context, in Input) (any, error) {
	persona := configString(in.Configuration, "persona")
	namespace := configString(in.Configuration, "namespace")
	if persona == "" || namespace == "" {
		return nil, newError(CodeInvalidInput, "persona and namespace are required", nil)
	}
	style := configString(in.Configuration, "style")

	out, err := s.generate(ctx, personaPrompt(persona, namespace, style, in.Text), "")
	if err != nil {
		return nil, err
	}
	return jobapi.PersonaTransformItem{
		SourceID:  in.SourceID,
		Persona:   persona,
		Namespace: namespace,
		Style:     style,
		Content:   strings.TrimSpace(out),
	}, nil
}

func (s *Service) runMadhyamakaTransform(ctx context.Context, in Input) (any, error) {
	detected := Detect(in.SourceID, in.Text)
	alternatives := configInt(in.Configuration, "alternatives", 2)

	out, err := s.generate(ctx, madhyamakaPrompt(in.Text, detected, alternatives), "json")
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Content      string   `json:"content"`
		Alternatives []string `json:"alternatives"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil || strings.TrimSpace(parsed.Content) == "" {
		return nil, newError(CodeBadOutput, "model returned malformed madhyamaka output", err)
	}
	if len(parsed.Alternatives) > alternatives {
		parsed.Alternatives = parsed.Alternatives[:alternatives]
	}
	return jobapi.MadhyamakaTransformItem{
		SourceID:     in.SourceID,
		Content:      strings.TrimSpace(parsed.Content),
		Alternatives: parsed.Alternatives,
	}, nil
}

func (s *Service) runPerspectives(ctx context.Context, in Input) (any, error) {
	lenses := configStrings(in.Configuration, "perspectives")
	if len(lenses) == 0 {
		lenses = defaultPerspectives
	}

	out, err := s.generate(ctx, perspectivesPrompt(in.Text, lenses), "json")
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Perspectives []jobapi.Perspective `json:"perspectives"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil || len(parsed.Perspectives) == 0 {
		return nil, newError(CodeBadOutput, "model returned malformed perspectives output", err)
	}
	return jobapi.PerspectivesItem{
		SourceID:     in.SourceID,
		Perspectives: parsed.Perspectives,
	}, nil
}

func (s *Service) generate(ctx context.Context, prompt, format string) (string, error) {
	if s.llm == nil {
		return "", newError(CodeEngineFailed, "no language model is configured", nil)
	}
	out, err := s.llm.Generate(ctx, s.model, prompt, format)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", newError(CodeEngineFailed, "language model request failed", err)
	}
	return out, nil
}

func configString(cfg map[string]any, key string) string {
	v, ok := cfg[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// configInt は JSON 由来の数値（float64）も受け付けます。
func configInt(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		if v >= 0 {
			return v
		}
	case float64:
		if v >= 0 {
			return int(v)
		}
	}
	return def
}

func configStrings(cfg map[string]any, key string) []string {
	var out []string
	switch v := cfg[key].(type) {
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}
