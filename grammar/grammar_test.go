package grammar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalWorkedExample(t *testing.T) {
	a := NewLocal().Check("i am go to school")
	if a.Corrected != "I am go to school." {
		t.Errorf("corrected = %q", a.Corrected)
	}
	if len(a.Issues) != 2 {
		t.Fatalf("issues = %+v", a.Issues)
	}
	if a.Score != 70 {
		t.Errorf("score = %d, want 70", a.Score)
	}
	if a.Issues[0].Offset == nil || *a.Issues[0].Offset != 0 || *a.Issues[0].Length != 1 {
		t.Errorf("first issue location = %+v", a.Issues[0])
	}
	if a.Analyzer != "local" || a.Degraded {
		t.Errorf("analyzer = %q degraded = %v", a.Analyzer, a.Degraded)
	}
}

func TestLocalRules(t *testing.T) {
	tests := []struct {
		in        string
		corrected string
		issues    int
	}{
		{"I like it a lot.", "I like it a lot.", 0},
		{"im happy u came 2 see me", "I'm happy you came to see me.", 4},
		{"ur right", "you're right.", 3},
		{"Hello", "Hello.", 2},
		{"this is 4 you!", "this is for you!", 1},
		{"Is it fine?", "Is it fine?", 0},
	}
	l := NewLocal()
	for _, tt := range tests {
		a := l.Check(tt.in)
		if a.Corrected != tt.corrected {
			t.Errorf("Check(%q).Corrected = %q, want %q", tt.in, a.Corrected, tt.corrected)
		}
		if len(a.Issues) != tt.issues {
			t.Errorf("Check(%q) issues = %d, want %d: %+v", tt.in, len(a.Issues), tt.issues, a.Issues)
		}
	}
}

func TestLocalDeterministicAndIdempotent(t *testing.T) {
	l := NewLocal()
	for _, in := range []string{"i am go to school", "im ok u know", "what r u doing 2day"} {
		first := l.Check(in)
		if !reflect.DeepEqual(first, l.Check(in)) {
			t.Errorf("Check(%q) not deterministic", in)
		}
		again := l.Check(first.Corrected)
		if again.Corrected != first.Corrected {
			t.Errorf("Check not idempotent on %q: %q -> %q", in, first.Corrected, again.Corrected)
		}
	}
}

func TestLocalOffsetsUseUTF16Units(t *testing.T) {
	tests := []struct {
		text   string
		offset int
		length int
		fixed  string
	}{
		{"café u ok", 5, 1, "café you ok"},
		{"😀 i am here", 3, 1, "😀 I am here"},
		{"naïve ur late", 6, 2, "naïve you're late"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			a := NewLocal().Check(tt.text)
			if len(a.Issues) == 0 || a.Issues[0].Offset == nil {
				t.Fatalf("issues = %+v", a.Issues)
			}
			is := a.Issues[0]
			if *is.Offset != tt.offset || *is.Length != tt.length {
				t.Errorf("offset, length = %d, %d; want %d, %d", *is.Offset, *is.Length, tt.offset, tt.length)
			}
			m := Match{Offset: *is.Offset, Length: *is.Length, Replacements: []string{strings.Fields(tt.fixed)[1]}}
			if got := applyReplacements(tt.text, []Match{m}); got != tt.fixed {
				t.Errorf("applying the local span gives %q, want %q", got, tt.fixed)
			}
		})
	}
}

func TestScoreFloor(t *testing.T) {
	if got := Score(0, localPenalty); got != 100 {
		t.Errorf("Score(0) = %d", got)
	}
	if got := Score(10, localPenalty); got != 50 {
		t.Errorf("Score(10) = %d, want floor 50", got)
	}
	if got := Score(3, remotePenalty); got != 70 {
		t.Errorf("Score(3, remote) = %d", got)
	}
}

func TestApplyReplacements(t *testing.T) {
	text := "i am go to school"
	got := applyReplacements(text, []Match{
		{Offset: 5, Length: 2, Replacements: []string{"going"}},
		{Offset: 0, Length: 1, Replacements: []string{"I"}},
		{Offset: 4, Length: 4, Replacements: []string{"overlap"}},
		{Offset: 40, Length: 1, Replacements: []string{"x"}},
		{Offset: 8, Length: 2},
	})
	if got != "I am going to school" {
		t.Errorf("got %q", got)
	}

	// offsets count UTF-16 units: the emoji occupies two
	if got := applyReplacements("😀 i", []Match{{Offset: 3, Length: 1, Replacements: []string{"I"}}}); got != "😀 I" {
		t.Errorf("utf16 splice = %q", got)
	}
}

func TestFromMatchesGenericSuggestion(t *testing.T) {
	a := fromMatches("languagetool", "abc", []Match{{Message: "odd", Offset: 0, Length: 1}})
	if a.Issues[0].Suggestion != genericSuggestion {
		t.Errorf("suggestion = %q", a.Issues[0].Suggestion)
	}
	if a.Corrected != "abc" || a.Score != 90 {
		t.Errorf("analysis = %+v", a)
	}
}

func languageToolServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestLanguageToolSuccess(t *testing.T) {
	srv := languageToolServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/check" || r.Method != "POST" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		if r.Form.Get("text") != "i am go to school" || r.Form.Get("language") != "en-US" {
			t.Errorf("form = %v", r.Form)
		}
		fmt.Fprint(w, `{"matches":[
			{"message":"Capitalize","offset":0,"length":1,"replacements":[{"value":"I"}]},
			{"message":"Verb form","offset":5,"length":2,"replacements":[{"value":"going"},{"value":"went"}]}
		]}`)
	})

	lt := NewLanguageTool(srv.URL, "en-US")
	a, err := lt.Analyze(context.Background(), "i am go to school")
	if err != nil {
		t.Fatal(err)
	}
	if a.Corrected != "I am going to school" {
		t.Errorf("corrected = %q", a.Corrected)
	}
	if len(a.Issues) != 2 || a.Issues[1].Suggestion != "going" {
		t.Errorf("issues = %+v", a.Issues)
	}
	if a.Score != 80 || a.Analyzer != "languagetool" {
		t.Errorf("score = %d analyzer = %q", a.Score, a.Analyzer)
	}
}

func TestLanguageToolHTTPError(t *testing.T) {
	srv := languageToolServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := NewLanguageTool(srv.URL, "").Analyze(context.Background(), "hello")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != 500 {
		t.Fatalf("err = %v", err)
	}
}

func TestLanguageToolNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewLanguageTool(url, "").Analyze(context.Background(), "hello")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v", err)
	}
}

func TestFallbackDegradesOnTimeout(t *testing.T) {
	srv := languageToolServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	fb := NewFallback(NewLanguageTool(srv.URL, ""), NewLocal(), 50*time.Millisecond)
	start := time.Now()
	a, err := fb.Analyze(context.Background(), "i am go to school")
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > time.Second {
		t.Error("fallback waited past its timeout")
	}
	if !a.Degraded {
		t.Error("expected degraded analysis")
	}

	want := NewLocal().Check("i am go to school")
	want.Degraded = true
	if !reflect.DeepEqual(a, want) {
		t.Errorf("fallback = %+v, want %+v", a, want)
	}
}

func TestFallbackDegradesOnServerError(t *testing.T) {
	srv := languageToolServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	a, _ := NewFallback(NewLanguageTool(srv.URL, ""), nil, time.Second).Analyze(context.Background(), "hello there friend.")
	if !a.Degraded || a.Analyzer != "local" || a.Score != 100 {
		t.Errorf("analysis = %+v", a)
	}
}

func TestFallbackWithoutPrimary(t *testing.T) {
	fb := NewFallback(nil, nil, 0)
	if fb.Name() != "local" {
		t.Errorf("name = %q", fb.Name())
	}
	a, err := fb.Analyze(context.Background(), "i am go to school")
	if err != nil || a.Degraded || a.Score != 70 {
		t.Errorf("analysis = %+v err = %v", a, err)
	}
}

func chatCompletion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   DefaultOpenAIModel,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

func TestOpenAIAnalyze(t *testing.T) {
	srv := languageToolServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatCompletion("```json\n{\"corrected\":\"I am going to school.\",\"issues\":[{\"message\":\"Verb form\",\"suggestion\":\"going\"},{\"message\":\"Capitalize I\"}]}\n```"))
	})

	o, err := NewOpenAI("test-key", "", srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	a, err := o.Analyze(context.Background(), "i am go to school")
	if err != nil {
		t.Fatal(err)
	}
	if a.Corrected != "I am going to school." || a.Score != 80 || a.Analyzer != "openai" {
		t.Errorf("analysis = %+v", a)
	}
	if a.Issues[1].Suggestion != genericSuggestion {
		t.Errorf("missing suggestion not defaulted: %+v", a.Issues[1])
	}
}

func TestOpenAIErrorsDoNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := languageToolServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	})

	o, _ := NewOpenAI("test-key", "", srv.URL+"/")
	_, err := o.Analyze(context.Background(), "hello")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != 500 {
		t.Fatalf("err = %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI("", "", ""); err == nil {
		t.Error("expected missing key error")
	}
}

func TestParseOpenAIReplyRejectsProse(t *testing.T) {
	if _, err := parseOpenAIReply("Looks fine to me"); err == nil {
		t.Error("expected parse error")
	}
}
