package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/JakeFAU/jobscout/internal/retry"
)

type fakeModels struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     []string
}

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, model+":"+contents[0].Parts[0].Text)
	if len(f.responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next.resp, next.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func fastPolicy() *retry.Policy {
	return retry.NewExponential(3, time.Millisecond, 2*time.Millisecond)
}

func TestGenerateContentJoinsParts(t *testing.T) {
	t.Parallel()

	models := &fakeModels{responses: []fakeResponse{{resp: textResponse(" first ", "", "second")}}}
	c := newClient(models, Config{}, fastPolicy(), nil)

	out, err := c.GenerateContent(context.Background(), "  score this  ")
	require.NoError(t, err)
	require.Equal(t, "first\nsecond", out)
	require.Equal(t, []string{"gemini-2.5-pro:score this"}, models.calls)
	require.Equal(t, "gemini-2.5-pro", c.Model())
}

func TestGenerateContentRetriesServerErrors(t *testing.T) {
	t.Parallel()

	models := &fakeModels{responses: []fakeResponse{
		{err: genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}},
		{err: genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"}},
		{resp: textResponse("ok")},
	}}
	c := newClient(models, Config{Model: "gemini-test"}, fastPolicy(), nil)

	out, err := c.GenerateContent(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Len(t, models.calls, 3)
}

func TestGenerateContentDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	models := &fakeModels{responses: []fakeResponse{
		{err: genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}},
	}}
	c := newClient(models, Config{}, fastPolicy(), nil)

	_, err := c.GenerateContent(context.Background(), "prompt")
	require.Error(t, err)
	var httpErr *retry.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	require.Len(t, models.calls, 1)
}

func TestGenerateContentEmpty(t *testing.T) {
	t.Parallel()

	models := &fakeModels{responses: []fakeResponse{{resp: textResponse("  ")}}}
	c := newClient(models, Config{}, retry.NewExponential(1, time.Millisecond, time.Millisecond), nil)

	_, err := c.GenerateContent(context.Background(), "prompt")
	require.ErrorIs(t, err, ErrEmptyResponse)

	_, err = c.GenerateContent(context.Background(), "   ")
	require.Error(t, err)
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{APIKey: " "}, nil, nil)
	require.Error(t, err)
}
