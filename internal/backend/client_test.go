package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/text-forge/internal/jobapi"
)

func TestCreateJob(t *testing.T) {
	var received jobapi.CreateJobRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/jobs", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&received)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(jobapi.JobCreated{
			ID:         "job-1",
			Name:       received.Name,
			JobType:    received.JobType,
			Status:     jobapi.StatusPending,
			TotalItems: 1,
			CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		})
	}))
	defer server.Close()

	c := NewClient(server.URL+"/api/", "secret", 5*time.Second)
	created, err := c.CreateJob(context.Background(), jobapi.CreateJobRequest{
		Name:          "draft",
		JobType:       jobapi.KindPerspectives,
		SourceIDs:     []string{"src-1"},
		Configuration: map[string]any{},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", created.ID)
	assert.Equal(t, jobapi.StatusPending, created.Status)
	assert.Equal(t, []string{"src-1"}, received.SourceIDs)
	assert.Equal(t, jobapi.KindPerspectives, received.JobType)
}

func TestErrorDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(jobapi.ErrorBody{Detail: "persona is required"})
	}))
	defer server.Close()

	c := NewClient(server.URL, "", 0)
	_, err := c.CreateJob(context.Background(), jobapi.CreateJobRequest{})
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.StatusCode)
	assert.Equal(t, "persona is required", httpErr.Detail)
}

func TestErrorPlainBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", 0).GetJob(context.Background(), "x")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "upstream exploded", httpErr.Detail)
}

func TestGetJobAndResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/jobs/abc":
			_, _ = w.Write([]byte(`{"id":"abc","status":"running","progress":{"processed_items":1,"total_items":4,"progress_percentage":25}}`))
		case "/jobs/abc/results":
			_, _ = w.Write([]byte(`{"job_name":"n","job_type":"perspectives","results":[{"source_id":"s","perspectives":[]}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, "", 0)
	status, err := c.GetJob(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, jobapi.StatusRunning, status.Status)
	require.NotNil(t, status.Progress)
	assert.Equal(t, 4, status.Progress.TotalItems)

	results, err := c.GetResults(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "perspectives", results.JobType)
	assert.Len(t, results.Results, 1)
}

func TestListJobsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("page_size"))
		_, _ = w.Write([]byte(`{"jobs":[{"id":"a","status":"pending","progress":null}],"total":11,"page":2,"page_size":10}`))
	}))
	defer server.Close()

	list, err := NewClient(server.URL, "", 0).ListJobs(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 11, list.Total)
	require.Len(t, list.Jobs, 1)
	assert.Nil(t, list.Jobs[0].Progress)
}

func TestTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := NewClient(server.URL, "", time.Second).GetJob(context.Background(), "a")
	require.Error(t, err)
	var httpErr *HTTPError
	assert.False(t, errors.As(err, &httpErr))
}
