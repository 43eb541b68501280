package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/yourusername/text-forge/internal/budget"
	"github.com/yourusername/text-forge/internal/jobapi"
	"github.com/yourusername/text-forge/internal/logging"
)

const (
	ParamName      = "name"
	ParamPersona   = "persona"
	ParamNamespace = "namespace"
	ParamStyle     = "style"
)

// Submitter は検証済みのリクエストをバックエンドのジョブに変換します。
// 重複投入は有料の処理を二重に発生させるため、ここではリトライしません。
type Submitter struct {
	backend Backend
	guard   *budget.Guard
	clock   clockwork.Clock
	logger  *zap.Logger
}

// NewSubmitter は Submitter を作成します。
func NewSubmitter(b Backend, guard *budget.Guard, clock clockwork.Clock, logger *zap.Logger) *Submitter {
	if guard == nil {
		guard = budget.NewGuard(budget.TierFree)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Submitter{
		backend: b,
		guard:   guard,
		clock:   clock,
		logger:  logging.OrNop(logger).Named("submitter"),
	}
}

// Validate はネットワークに触れずにリクエストを検証し、見積もりを返します。
func (s *Submitter) Validate(req Request) (budget.Estimate, error) {
	if strings.TrimSpace(req.SourceText) == "" {
		return budget.Estimate{}, &ValidationError{Field: "sourceText", Message: "source text is empty"}
	}
	if !req.Kind.Valid() {
		return budget.Estimate{}, &ValidationError{Field: "jobKind", Message: fmt.Sprintf("unknown job kind %q", req.Kind)}
	}
	if req.Kind == jobapi.KindPersonaTransform {
		for _, key := range []string{ParamPersona, ParamNamespace} {
			if stringParam(req.Parameters, key) == "" {
				return budget.Estimate{}, &ValidationError{Field: key, Message: key + " is required for " + string(req.Kind)}
			}
		}
	}

	est := s.guard.Estimate(req.SourceText)
	if !est.WithinLimit {
		msg := fmt.Sprintf("estimated %d tokens (%d chars) exceeds the %s tier limit of %d",
			est.EstimatedTokens, est.CharCount, s.guard.Tier(), est.TierLimit)
		if est.CharBound() {
			msg = fmt.Sprintf("%d chars exceeds the %s tier limit of %d characters (estimated %d tokens)",
				est.CharCount, s.guard.Tier(), est.TierLimit, est.EstimatedTokens)
		}
		return est, &ValidationError{Field: "sourceText", Message: msg}
	}
	return est, nil
}

// Submit はリクエストを検証してからソースを登録し、ジョブを作成します。
// 検証エラーの場合はネットワークにアクセスしません。
func (s *Submitter) Submit(ctx context.Context, req Request) (*Job, error) {
	est, err := s.Validate(req)
	if err != nil {
		return nil, err
	}

	name := stringParam(req.Parameters, ParamName)
	if name == "" {
		name = fmt.Sprintf("%s %s", req.Kind, s.clock.Now().Format("2006-01-02 15:04:05"))
	}

	sourceID := req.SourceID
	if sourceID == "" {
		source, err := s.backend.CreateSource(ctx, jobapi.CreateSourceRequest{
			Name:    name,
			Content: req.SourceText,
		})
		if err != nil {
			return nil, toBackendError("upload source", err)
		}
		sourceID = source.ID
	}

	created, err := s.backend.CreateJob(ctx, jobapi.CreateJobRequest{
		Name:          name,
		JobType:       req.Kind,
		SourceIDs:     []string{sourceID},
		Configuration: configuration(req.Parameters),
	})
	if err != nil {
		be := toBackendError("create job", err)
		be.SourceID = sourceID
		return nil, be
	}

	job := &Job{
		ID:        created.ID,
		Kind:      req.Kind,
		Status:    jobapi.StatusPending,
		CreatedAt: created.CreatedAt,
		Name:      created.Name,
		Progress:  &Progress{Total: created.TotalItems},
	}
	if created.JobType.Valid() {
		job.Kind = created.JobType
	}
	if job.Name == "" {
		job.Name = name
	}

	s.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int("estimated_tokens", est.EstimatedTokens))
	return job, nil
}

func configuration(params map[string]any) map[string]any {
	cfg := make(map[string]any, len(params))
	for k, v := range params {
		if k == ParamName {
			continue
		}
		cfg[k] = v
	}
	return cfg
}

func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
