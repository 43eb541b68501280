package tracker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/text-forge/internal/jobapi"
)

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func newResolverFixture(status jobapi.Status) (*fakeBackend, *Registry, *Resolver) {
	b := newFakeBackend()
	r := NewRegistry(0, 0, newFakeClock())
	r.Record(jobAt("job-1", 1, status))
	return b, r, NewResolver(b, r, nil)
}

func TestResolver_NotReadyMakesNoFetch(t *testing.T) {
	for _, status := range []jobapi.Status{jobapi.StatusPending, jobapi.StatusRunning, jobapi.StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			b, _, res := newResolverFixture(status)

			_, err := res.Resolve(context.Background(), "job-1")
			var nr *NotReadyError
			require.ErrorAs(t, err, &nr)
			assert.Equal(t, status, nr.Status)

			_, _, _, results := b.calls()
			assert.Zero(t, results)
		})
	}
}

func TestResolver_UntrackedJobIsNotReady(t *testing.T) {
	b, _, res := newResolverFixture(jobapi.StatusCompleted)
	_, err := res.Resolve(context.Background(), "unknown")

	var nr *NotReadyError
	require.ErrorAs(t, err, &nr)
	assert.Contains(t, err.Error(), "not tracked")
	_, _, _, results := b.calls()
	assert.Zero(t, results)
}

func TestResolver_ClassifiesAndCaches(t *testing.T) {
	b, _, res := newResolverFixture(jobapi.StatusCompleted)
	b.results["job-1"] = &jobapi.JobResults{
		JobName: "essay",
		JobType: string(jobapi.KindMadhyamakaDetect),
		Results: []json.RawMessage{raw(t, jobapi.MadhyamakaDetectItem{
			SourceID:        "src-1",
			EternalismScore: 0.7,
			NihilismScore:   0.1,
			MiddlePathScore: 0.2,
			Detections: []jobapi.Detection{
				{Extreme: "eternalism", Phrase: "the self is permanent", Confidence: 0.9},
			},
		})},
	}

	result, err := res.Resolve(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobapi.KindMadhyamakaDetect, result.Kind)
	assert.Equal(t, "essay", result.Name)
	require.Len(t, result.Items, 1)

	item, ok := result.Items[0].(MadhyamakaDetectItem)
	require.True(t, ok)
	assert.Equal(t, 0.7, item.EternalismScore)
	assert.Equal(t, "the self is permanent", item.Detections[0].Phrase)

	again, err := res.Resolve(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Same(t, result, again)
	_, _, _, results := b.calls()
	assert.Equal(t, 1, results)

	res.Forget("job-1")
	_, err = res.Resolve(context.Background(), "job-1")
	require.NoError(t, err)
	_, _, _, results = b.calls()
	assert.Equal(t, 2, results)
}

func TestResolver_UnsupportedKind(t *testing.T) {
	b, _, res := newResolverFixture(jobapi.StatusCompleted)
	b.results["job-1"] = &jobapi.JobResults{
		JobName: "mystery",
		JobType: "sentiment",
		Results: []json.RawMessage{json.RawMessage(`{"score":1}`)},
	}

	result, err := res.Resolve(context.Background(), "job-1")
	require.Nil(t, result)

	var uk *UnsupportedKindError
	require.ErrorAs(t, err, &uk)
	assert.Equal(t, "sentiment", uk.Kind)
	assert.Equal(t, `unsupported result type: "sentiment"`, err.Error())
}

func TestResolver_FetchErrorIsBackendError(t *testing.T) {
	_, _, res := newResolverFixture(jobapi.StatusCompleted)

	_, err := res.Resolve(context.Background(), "job-1")
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "fetch results", be.Op)
	assert.ErrorIs(t, err, errNetwork)
}

func TestClassify_AllKinds(t *testing.T) {
	tests := []struct {
		kind jobapi.Kind
		item any
		want Item
	}{
		{
			kind: jobapi.KindPersonaTransform,
			item: jobapi.PersonaTransformItem{SourceID: "s", Persona: "marcus", Namespace: "stoic", Content: "text"},
			want: PersonaTransformItem{jobapi.PersonaTransformItem{SourceID: "s", Persona: "marcus", Namespace: "stoic", Content: "text"}},
		},
		{
			kind: jobapi.KindMadhyamakaTransform,
			item: jobapi.MadhyamakaTransformItem{SourceID: "s", Content: "balanced", Alternatives: []string{"alt"}},
			want: MadhyamakaTransformItem{jobapi.MadhyamakaTransformItem{SourceID: "s", Content: "balanced", Alternatives: []string{"alt"}}},
		},
		{
			kind: jobapi.KindPerspectives,
			item: jobapi.PerspectivesItem{SourceID: "s", Perspectives: []jobapi.Perspective{{Name: "skeptic", Content: "why?"}}},
			want: PerspectivesItem{jobapi.PerspectivesItem{SourceID: "s", Perspectives: []jobapi.Perspective{{Name: "skeptic", Content: "why?"}}}},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			result, err := Classify("job-1", &jobapi.JobResults{
				JobType: string(tt.kind),
				Results: []json.RawMessage{raw(t, tt.item)},
			})
			require.NoError(t, err)
			require.Len(t, result.Items, 1)
			assert.Equal(t, tt.want, result.Items[0])
			assert.Equal(t, tt.kind, result.Items[0].Kind())
		})
	}
}

func TestClassify_MalformedItem(t *testing.T) {
	_, err := Classify("job-1", &jobapi.JobResults{
		JobType: string(jobapi.KindPerspectives),
		Results: []json.RawMessage{json.RawMessage(`{"perspectives":"not a list"}`)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode perspectives result 0")
}
