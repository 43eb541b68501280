package transform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/text-forge/internal/jobapi"
)

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
	formats []string
}

func (f *fakeGenerator) Generate(ctx context.Context, model, prompt, format string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.formats = append(f.formats, format)
	return f.reply, f.err
}

func TestDetect_Extremes(t *testing.T) {
	item := Detect("src-1", "The true self is permanent. Nothing matters anyway.")

	require.Len(t, item.Detections, 3)
	assert.Equal(t, ExtremeEternalism, item.Detections[0].Extreme)
	assert.Equal(t, "permanent", item.Detections[0].Phrase)
	assert.Equal(t, "true self", item.Detections[1].Phrase)
	assert.Equal(t, ExtremeNihilism, item.Detections[2].Extreme)
	assert.Equal(t, "Nothing matters", item.Detections[2].Phrase)

	assert.Equal(t, 0.65, item.EternalismScore)
	assert.Equal(t, 0.35, item.NihilismScore)
	assert.Zero(t, item.MiddlePathScore)
	assert.Equal(t, TendencyEternalism, item.DominantTendency)
}

func TestDetect_MiddlePath(t *testing.T) {
	item := Detect("src-1", "Everything arises in relation to its conditions.")
	assert.Empty(t, item.Detections)
	assert.Equal(t, 1.0, item.MiddlePathScore)
	assert.Equal(t, TendencyMiddlePath, item.DominantTendency)
}

func TestDetect_NeutralText(t *testing.T) {
	item := Detect("src-1", "The cat sat on the mat.")
	assert.NotNil(t, item.Detections)
	assert.Equal(t, 1.0, item.MiddlePathScore)
	assert.Equal(t, TendencyMiddlePath, item.DominantTendency)
}

func TestDetect_Deterministic(t *testing.T) {
	text := "It is always so, and yet it is meaningless."
	assert.Equal(t, Detect("a", text), Detect("a", text))
}

func TestService_PersonaTransform(t *testing.T) {
	gen := &fakeGenerator{reply: "  Accept the things you cannot change.  "}
	svc := NewService(gen, "llama3.1", nil)

	out, err := svc.Run(context.Background(), Input{
		Kind:          jobapi.KindPersonaTransform,
		SourceID:      "src-1",
		Text:          "Stop worrying.",
		Configuration: map[string]any{"persona": "marcus", "namespace": "stoic", "style": "formal"},
	})
	require.NoError(t, err)

	item := out.(jobapi.PersonaTransformItem)
	assert.Equal(t, "Accept the things you cannot change.", item.Content)
	assert.Equal(t, "formal", item.Style)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], `"marcus"`)
	assert.Contains(t, gen.prompts[0], "Stop worrying.")
}

func TestService_PersonaRequiresParameters(t *testing.T) {
	svc := NewService(&fakeGenerator{}, "m", nil)
	_, err := svc.Run(context.Background(), Input{Kind: jobapi.KindPersonaTransform, Text: "x"})

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeInvalidInput, apiErr.Code)
}

func TestService_MadhyamakaTransform(t *testing.T) {
	gen := &fakeGenerator{reply: `{"content":"Things change with conditions.","alternatives":["a","b","c"]}`}
	svc := NewService(gen, "m", nil)

	out, err := svc.Run(context.Background(), Input{
		Kind:          jobapi.KindMadhyamakaTransform,
		SourceID:      "src-1",
		Text:          "Nothing ever changes, it is eternal.",
		Configuration: map[string]any{"alternatives": float64(2)},
	})
	require.NoError(t, err)

	item := out.(jobapi.MadhyamakaTransformItem)
	assert.Equal(t, "Things change with conditions.", item.Content)
	assert.Equal(t, []string{"a", "b"}, item.Alternatives)
	assert.Equal(t, "json", gen.formats[0])
	assert.Contains(t, gen.prompts[0], `"eternal" (eternalism)`)
}

func TestService_Perspectives(t *testing.T) {
	gen := &fakeGenerator{reply: `{"perspectives":[{"name":"Child","content":"Why?"}]}`}
	svc := NewService(gen, "m", nil)

	out, err := svc.Run(context.Background(), Input{
		Kind:          jobapi.KindPerspectives,
		Text:          "Taxes are rising.",
		Configuration: map[string]any{"perspectives": []any{"Child", " "}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Child", out.(jobapi.PerspectivesItem).Perspectives[0].Name)
	assert.Contains(t, gen.prompts[0], "perspectives: Child.")
}

func TestService_MalformedModelOutput(t *testing.T) {
	svc := NewService(&fakeGenerator{reply: "not json"}, "m", nil)
	_, err := svc.Run(context.Background(), Input{Kind: jobapi.KindPerspectives, Text: "x"})

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeBadOutput, apiErr.Code)
}

func TestService_GeneratorFailure(t *testing.T) {
	cause := errors.New("connection refused")
	svc := NewService(&fakeGenerator{err: cause}, "m", nil)
	_, err := svc.Run(context.Background(), Input{Kind: jobapi.KindMadhyamakaTransform, Text: "x"})

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeEngineFailed, apiErr.Code)
	assert.ErrorIs(t, err, cause)
}

func TestService_DetectDoesNotUseModel(t *testing.T) {
	svc := NewService(nil, "", nil)
	out, err := svc.Run(context.Background(), Input{Kind: jobapi.KindMadhyamakaDetect, SourceID: "s", Text: "It is pointless."})
	require.NoError(t, err)
	assert.Equal(t, TendencyNihilism, out.(jobapi.MadhyamakaDetectItem).DominantTendency)
}

func TestService_UnsupportedKindAndEmptyText(t *testing.T) {
	svc := NewService(&fakeGenerator{}, "m", nil)

	_, err := svc.Run(context.Background(), Input{Kind: "summarize", Text: "x"})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeUnsupported, apiErr.Code)

	_, err = svc.Run(context.Background(), Input{Kind: jobapi.KindMadhyamakaDetect, Text: "  "})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeInvalidInput, apiErr.Code)
}

func TestOllamaClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.1", req.Model)
		assert.Equal(t, "json", req.Format)
		assert.False(t, req.Stream)
		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: `{"ok":true}`})
	}))
	defer srv.Close()

	out, err := NewOllamaClient(srv.URL+"/").Generate(context.Background(), "llama3.1", "hi", "json")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestOllamaClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaClient(srv.URL).Generate(context.Background(), "missing", "hi", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "model not found")
}
