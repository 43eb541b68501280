package render

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/text-forge/internal/jobapi"
	"github.com/yourusername/text-forge/internal/tracker"
)

func classify(t *testing.T, kind jobapi.Kind, items ...any) *tracker.Result {
	t.Helper()
	payload := &jobapi.JobResults{JobName: "essay", JobType: string(kind)}
	for _, it := range items {
		b, err := json.Marshal(it)
		require.NoError(t, err)
		payload.Results = append(payload.Results, b)
	}
	res, err := tracker.Classify("job-1", payload)
	require.NoError(t, err)
	return res
}

func TestMarkdown_PerKind(t *testing.T) {
	tests := []struct {
		name string
		res  *tracker.Result
		want []string
	}{
		{
			name: "persona transform",
			res: classify(t, jobapi.KindPersonaTransform, jobapi.PersonaTransformItem{
				SourceID: "s1", Persona: "marcus", Namespace: "stoic", Style: "formal", Content: "Accept what you cannot change.",
			}),
			want: []string{"# essay", "marcus (stoic)", "Style: **formal**", "Accept what you cannot change."},
		},
		{
			name: "madhyamaka detect",
			res: classify(t, jobapi.KindMadhyamakaDetect, jobapi.MadhyamakaDetectItem{
				SourceID: "s1", EternalismScore: 0.5, NihilismScore: 0, MiddlePathScore: 1,
				Detections: []jobapi.Detection{{Extreme: "eternalism", Phrase: "forever unchanging", Confidence: 0.8}},
			}),
			want: []string{"| Eternalism | 0.50 |", "██████████░░░░░░░░░░", "**eternalism** (80%): \"forever unchanging\""},
		},
		{
			name: "madhyamaka transform",
			res: classify(t, jobapi.KindMadhyamakaTransform, jobapi.MadhyamakaTransformItem{
				SourceID: "s1", Content: "Things arise dependently.", Alternatives: []string{"Nothing stands alone."},
			}),
			want: []string{"Things arise dependently.", "### Alternatives", "- Nothing stands alone."},
		},
		{
			name: "perspectives",
			res: classify(t, jobapi.KindPerspectives, jobapi.PerspectivesItem{
				SourceID: "s1", Perspectives: []jobapi.Perspective{{Name: "Skeptic", Content: "What is the evidence?"}},
			}),
			want: []string{"### Skeptic", "What is the evidence?"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := Markdown(tt.res)
			for _, w := range tt.want {
				assert.Contains(t, md, w)
			}
		})
	}
}

func TestMarkdown_NoDetections(t *testing.T) {
	md := Markdown(classify(t, jobapi.KindMadhyamakaDetect, jobapi.MadhyamakaDetectItem{SourceID: "s1"}))
	assert.Contains(t, md, "No extreme views detected.")
}

func TestMarkdown_EmptyResult(t *testing.T) {
	md := Markdown(&tracker.Result{JobID: "job-1", Kind: jobapi.KindPerspectives})
	assert.Contains(t, md, "# job-1")
	assert.Contains(t, md, "No results were produced")
}

func TestRenderer_Result(t *testing.T) {
	r := New(60, WithStyle("notty"))
	out := r.Result(classify(t, jobapi.KindPerspectives, jobapi.PerspectivesItem{
		SourceID: "s1", Perspectives: []jobapi.Perspective{{Name: "Skeptic", Content: "evidence"}},
	}))
	assert.Contains(t, out, "Skeptic")
	assert.Contains(t, out, "evidence")
	assert.Empty(t, r.Result(nil))
}

func TestRenderer_UnsupportedKindIsExplicit(t *testing.T) {
	_, err := tracker.Classify("job-1", &jobapi.JobResults{JobType: "unknown_kind"})
	require.Error(t, err)

	out := New(60).Error(err)
	assert.Contains(t, out, "Unsupported result type")
	assert.Contains(t, out, "unsupported result type")
	assert.Contains(t, out, "unknown_kind")
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err   error
		title string
	}{
		{&tracker.ValidationError{Field: "sourceText", Message: "empty"}, "Invalid request"},
		{&tracker.TimeoutError{JobID: "j", Elapsed: 300 * time.Second}, "Polling timed out"},
		{&tracker.NotReadyError{JobID: "j", Status: jobapi.StatusRunning}, "Results not ready"},
		{&tracker.UnsupportedKindError{Kind: "x"}, "Unsupported result type"},
		{&tracker.BackendError{Op: "create job", StatusCode: 422, Err: errors.New("bad")}, "Backend error (422 Unprocessable Entity)"},
		{&tracker.BackendError{Op: "create job", Err: errors.New("dial tcp")}, "Backend unreachable"},
		{errors.New("boom"), "Error"},
	}
	for _, tt := range tests {
		title, _ := Describe(tt.err)
		assert.Equal(t, tt.title, title)
	}

	_, hint := Describe(&tracker.TimeoutError{JobID: "j"})
	assert.Contains(t, hint, "may still be processing")
}
