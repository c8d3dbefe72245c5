package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycgate/internal/capability"
	"kycgate/internal/capability/contract"
)

// scriptedGenerator answers by capability name and counts calls.
type scriptedGenerator struct {
	answers map[string][]string
	errs    map[string][]error
	calls   map[string]int
}

func newScripted() *scriptedGenerator {
	return &scriptedGenerator{answers: map[string][]string{}, errs: map[string][]error{}, calls: map[string]int{}}
}

func (g *scriptedGenerator) Generate(_ context.Context, req Request) (string, error) {
	n := g.calls[req.Capability]
	g.calls[req.Capability]++
	if errs := g.errs[req.Capability]; n < len(errs) && errs[n] != nil {
		return "", errs[n]
	}
	answers := g.answers[req.Capability]
	if len(answers) == 0 {
		return "", capability.NewError(capability.ErrorInternal, req.Capability, "no scripted answer", nil)
	}
	if n >= len(answers) {
		n = len(answers) - 1
	}
	return answers[n], nil
}

var fastRetry = RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}

func TestLLMContract(t *testing.T) {
	gen := newScripted()
	gen.answers["classifier"] = []string{`{"document_type":"passport","confidence":0.93}`}
	gen.answers["ocr"] = []string{"```json\n{\"language\":\"HI\",\"raw_text\":\"नाम: राम\",\"confidence\":0.8}\n```"}
	gen.answers["translator"] = []string{`{"text":"name: Ram","confidence":0.7}`}
	gen.answers["extractor"] = []string{`{"fields":[{"name":"full_name","value":"Ram","confidence":0.9},{"name":"dob","value":"","confidence":0.4},{"name":"extra","value":"x","confidence":1}]}`}
	gen.answers["reasoner"] = []string{`{"discrepancies":[{"field":"dob","expected":"1983-02-06","received":null,"severity":"HIGH","explanation":"missing"}],"overall_confidence":0.6,"summary":"one issue"}`}

	suite := contract.Suite{
		Set: NewSet("scripted", gen, WithRetryPolicy(fastRetry)),
		Classifications: []contract.ClassifierCase{
			{Name: "passport", Input: capability.EvidenceInput{Content: []byte{1}}, Expected: capability.DocPassport},
		},
		Document:       capability.EvidenceInput{Content: []byte("scan")},
		TargetLanguage: "en",
		Fields:         []string{"full_name", "dob"},
		Case:           capability.CaseContext{CaseID: "INT-1"},
	}
	suite.Run(t)
}

func TestExtractorKeepsRequestedFieldsOnly(t *testing.T) {
	gen := newScripted()
	gen.answers["extractor"] = []string{`{"fields":[{"name":"full_name","value":" Ram ","confidence":0.9},{"name":"dob","value":"","confidence":0.4},{"name":"extra","value":"x","confidence":1}]}`}
	set := NewSet("scripted", gen)

	fields, err := set.Extractor.Extract(context.Background(), "text", []string{"full_name", "dob"})
	require.NoError(t, err)
	require.Len(t, fields, 2)
	require.NotNil(t, fields["full_name"].Value)
	assert.Equal(t, "Ram", *fields["full_name"].Value)
	assert.Nil(t, fields["dob"].Value)
	assert.Zero(t, fields["dob"].Confidence)
}

func TestSchemaViolationIsContractMismatch(t *testing.T) {
	gen := newScripted()
	gen.answers["classifier"] = []string{`{"document_type":"selfie","confidence":0.9}`}
	gen.answers["translator"] = []string{`not json`}
	set := NewSet("scripted", gen)

	(&contract.ErrorContractTest{
		Name: "label outside vocabulary",
		Call: func(ctx context.Context) error {
			_, err := set.Classifier.Classify(ctx, capability.EvidenceInput{})
			return err
		},
		ExpectedError: capability.ErrorContractMismatch,
		ExpectedRetry: true,
	}).Run(t)

	(&contract.ErrorContractTest{
		Name: "non-json text",
		Call: func(ctx context.Context) error {
			_, err := set.Translator.Translate(ctx, capability.OCRResult{Language: "hi"}, "en")
			return err
		},
		ExpectedError: capability.ErrorContractMismatch,
		ExpectedRetry: true,
	}).Run(t)
}

func TestReasonerRetry(t *testing.T) {
	valid := `{"discrepancies":[],"overall_confidence":0.9,"summary":"ok"}`

	t.Run("succeeds after retryable failures", func(t *testing.T) {
		gen := newScripted()
		gen.errs["reasoner"] = []error{
			capability.NewError(capability.ErrorOutage, "reasoner", "503", nil),
			capability.NewError(capability.ErrorTimeout, "reasoner", "slow", nil),
		}
		gen.answers["reasoner"] = []string{"", "", valid}
		set := NewSet("scripted", gen, WithRetryPolicy(fastRetry))

		res, err := set.Reasoner.Reason(context.Background(), capability.CaseContext{CaseID: "INT-1"})
		require.NoError(t, err)
		assert.Equal(t, 3, gen.calls["reasoner"])
		assert.NotNil(t, res.Discrepancies)
		assert.Empty(t, res.Discrepancies)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		gen := newScripted()
		gen.answers["reasoner"] = []string{`{"oops":true}`}
		set := NewSet("scripted", gen, WithRetryPolicy(fastRetry))

		_, err := set.Reasoner.Reason(context.Background(), capability.CaseContext{})
		require.Error(t, err)
		assert.Equal(t, capability.ErrorContractMismatch, capability.GetCategory(err))
		assert.Equal(t, 3, gen.calls["reasoner"])
	})

	t.Run("does not retry permanent failures", func(t *testing.T) {
		gen := newScripted()
		gen.errs["reasoner"] = []error{capability.NewError(capability.ErrorAuthentication, "reasoner", "401", nil)}
		gen.answers["reasoner"] = []string{valid}
		set := NewSet("scripted", gen, WithRetryPolicy(fastRetry))

		_, err := set.Reasoner.Reason(context.Background(), capability.CaseContext{})
		require.Error(t, err)
		assert.Equal(t, capability.ErrorAuthentication, capability.GetCategory(err))
		assert.Equal(t, 1, gen.calls["reasoner"])
	})
}

func TestGeminiClient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		var req struct {
			Contents []struct {
				Parts []json.RawMessage `json:"parts"`
			} `json:"contents"`
			GenerationConfig struct {
				ResponseMimeType   string          `json:"responseMimeType"`
				ResponseJsonSchema json.RawMessage `json:"responseJsonSchema"`
			} `json:"generationConfig"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		assert.NotEmpty(t, req.GenerationConfig.ResponseJsonSchema)
		if assert.Len(t, req.Contents, 1) {
			assert.Len(t, req.Contents[0].Parts, 2, "prompt plus inline attachment")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"document_type\":\"utility_bill\",\"confidence\":0.8}"}]}}]}`)
	}))
	defer srv.Close()

	gen, err := NewGeminiClient(context.Background(), ClientConfig{BaseURL: srv.URL, APIKey: "secret", Model: "test-model", Timeout: time.Second})
	require.NoError(t, err)
	set := NewSet("gemini", gen)
	got, err := set.Classifier.Classify(context.Background(), capability.EvidenceInput{
		Descriptor: capability.EvidenceDescriptor{FileName: "bill.pdf", ContentType: "application/pdf"},
		Content:    []byte("%PDF"),
	})
	require.NoError(t, err)
	assert.Equal(t, capability.DocUtilityBill, got.DocumentType)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGeminiClientStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`)
	}))
	defer srv.Close()

	gen, err := NewGeminiClient(context.Background(), ClientConfig{BaseURL: srv.URL, APIKey: "secret", Model: "m", Timeout: time.Second})
	require.NoError(t, err)
	(&contract.ErrorContractTest{
		Name: "unavailable",
		Call: func(ctx context.Context) error {
			_, err := gen.Generate(ctx, Request{Capability: "ocr", Prompt: "hi"})
			return err
		},
		ExpectedError: capability.ErrorOutage,
		ExpectedRetry: true,
	}).Run(t)
}

func TestOpenAIClientStatusMapping(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		category capability.ErrorCategory
		retry    bool
	}{
		{"unauthorized", http.StatusUnauthorized, capability.ErrorAuthentication, false},
		{"rate limited", http.StatusTooManyRequests, capability.ErrorRateLimited, true},
		{"outage", http.StatusBadGateway, capability.ErrorOutage, true},
		{"bad request", http.StatusBadRequest, capability.ErrorInternal, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"test"}}`)
		}))
		client := NewOpenAIClient(ClientConfig{BaseURL: srv.URL, APIKey: "k", Model: "gpt", Timeout: time.Second})
		(&contract.ErrorContractTest{
			Name: tc.name,
			Call: func(ctx context.Context) error {
				_, err := client.Generate(ctx, Request{Capability: "translator", Prompt: "hi"})
				return err
			},
			ExpectedError: tc.category,
			ExpectedRetry: tc.retry,
		}).Run(t)
		srv.Close()
	}
}

func TestOpenAIClientReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req struct {
			Model          string `json:"model"`
			ResponseFormat struct {
				Type       string `json:"type"`
				JSONSchema struct {
					Name   string          `json:"name"`
					Schema json.RawMessage `json:"schema"`
				} `json:"json_schema"`
			} `json:"response_format"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt", req.Model)
		assert.Equal(t, "json_schema", req.ResponseFormat.Type)
		assert.Equal(t, "translation", req.ResponseFormat.JSONSchema.Name)
		assert.NotEmpty(t, req.ResponseFormat.JSONSchema.Schema)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"text\":\"hello\",\"confidence\":0.9}"}}]}`)
	}))
	defer srv.Close()

	set := NewSet("openai", NewOpenAIClient(ClientConfig{BaseURL: srv.URL, APIKey: "k", Model: "gpt", Timeout: time.Second}))
	tr, err := set.Translator.Translate(context.Background(), capability.OCRResult{Language: "hi", RawText: "नमस्ते"}, "en")
	require.NoError(t, err)
	assert.Equal(t, "hello", tr.Text)
	assert.Equal(t, "hi", tr.SourceLanguage)
	assert.Equal(t, "en", tr.TargetLanguage)
}
