package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/text-forge/internal/config"
	"github.com/yourusername/text-forge/internal/jobapi"
	"github.com/yourusername/text-forge/internal/jobs"
	"github.com/yourusername/text-forge/internal/storage"
	"github.com/yourusername/text-forge/internal/transform"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// jobService はハンドラーが使うジョブ管理の操作です。
type jobService interface {
	Submit(ctx context.Context, req jobapi.CreateJobRequest) (*jobs.Record, error)
	GetRecord(ctx context.Context, jobID string) (*jobs.Record, error)
	ListRecords(ctx context.Context, page, pageSize int) ([]*jobs.Record, int, error)
	Results(ctx context.Context, jobID string) ([]json.RawMessage, error)
}

func setupJobs(cfg *config.Config, engine transform.Engine, sources storage.Storage, logger *zap.Logger) (*jobs.Manager, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	store := jobs.NewStore(redisClient, cfg.JobTTL(), nil)
	if err := store.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return jobs.NewManager(cfg, engine, sources, store, logger)
}

func abortDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, jobapi.ErrorBody{Detail: detail})
}

func createJobHandler(manager jobService, sources storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req jobapi.CreateJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortDetail(c, http.StatusBadRequest, "request body must be a JSON object")
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if !req.JobType.Valid() {
			abortDetail(c, http.StatusUnprocessableEntity, fmt.Sprintf("unknown job_type %q", req.JobType))
			return
		}
		if len(req.SourceIDs) == 0 {
			abortDetail(c, http.StatusUnprocessableEntity, "source_ids must not be empty")
			return
		}
		if req.JobType == jobapi.KindPersonaTransform {
			if detail := validatePersonaConfig(req.Configuration); detail != "" {
				abortDetail(c, http.StatusUnprocessableEntity, detail)
				return
			}
		}

		ctx := c.Request.Context()
		for _, id := range req.SourceIDs {
			if _, err := sources.Stat(ctx, id); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					abortDetail(c, http.StatusUnprocessableEntity, fmt.Sprintf("source %s not found", id))
					return
				}
				abortDetail(c, http.StatusInternalServerError, "failed to look up sources")
				return
			}
		}

		record, err := manager.Submit(ctx, req)
		if err != nil {
			abortDetail(c, http.StatusServiceUnavailable, "failed to queue job")
			return
		}
		c.JSON(http.StatusCreated, record.ToCreated())
	}
}

func validatePersonaConfig(cfg map[string]any) string {
	for _, key := range []string{"persona", "namespace"} {
		v, ok := cfg[key].(string)
		if !ok || strings.TrimSpace(v) == "" {
			return fmt.Sprintf("configuration.%s is required for persona_transform", key)
		}
	}
	return ""
}

func jobStatusHandler(manager jobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := lookupRecord(c, manager)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, record.ToStatus())
	}
}

func jobResultsHandler(manager jobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, ok := lookupRecord(c, manager)
		if !ok {
			return
		}
		if record.Status != jobapi.StatusCompleted {
			abortDetail(c, http.StatusConflict, fmt.Sprintf("job %s is %s, results are not available", record.JobID, record.Status))
			return
		}

		results, err := manager.Results(c.Request.Context(), record.JobID)
		if err != nil {
			abortDetail(c, http.StatusInternalServerError, "failed to load job results")
			return
		}
		if results == nil {
			results = []json.RawMessage{}
		}
		c.JSON(http.StatusOK, jobapi.JobResults{
			JobName: record.Name,
			JobType: string(record.JobType),
			Results: results,
		})
	}
}

func listJobsHandler(manager jobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := queryInt(c, "page", 1)
		if err != nil || page < 1 {
			abortDetail(c, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		pageSize, err := queryInt(c, "page_size", defaultPageSize)
		if err != nil || pageSize < 1 {
			abortDetail(c, http.StatusBadRequest, "page_size must be a positive integer")
			return
		}
		pageSize = min(pageSize, maxPageSize)

		records, total, err := manager.ListRecords(c.Request.Context(), page, pageSize)
		if err != nil {
			abortDetail(c, http.StatusInternalServerError, "failed to list jobs")
			return
		}

		list := jobapi.JobList{
			Jobs:     make([]jobapi.JobStatus, 0, len(records)),
			Total:    total,
			Page:     page,
			PageSize: pageSize,
		}
		for _, r := range records {
			list.Jobs = append(list.Jobs, r.ToStatus())
		}
		c.JSON(http.StatusOK, list)
	}
}

func lookupRecord(c *gin.Context, manager jobService) (*jobs.Record, bool) {
	jobID := strings.TrimSpace(c.Param("id"))
	if jobID == "" {
		abortDetail(c, http.StatusBadRequest, "job id is required")
		return nil, false
	}

	record, err := manager.GetRecord(c.Request.Context(), jobID)
	if err != nil {
		abortDetail(c, http.StatusInternalServerError, "failed to load job")
		return nil, false
	}
	if record == nil {
		abortDetail(c, http.StatusNotFound, fmt.Sprintf("job %s not found", jobID))
		return nil, false
	}
	return record, true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
