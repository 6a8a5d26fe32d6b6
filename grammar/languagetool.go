package grammar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"speakup/log"
)

const DefaultLanguageToolURL = "https://api.languagetoolplus.com"

// LanguageTool checks text against a LanguageTool /v2/check endpoint.
type LanguageTool struct {
	client  *TracedClient
	baseURL string
	lang    string
}

func NewLanguageTool(baseURL, lang string) *LanguageTool {
	if baseURL == "" {
		baseURL = DefaultLanguageToolURL
	}
	if lang == "" {
		lang = "en-US"
	}
	return &LanguageTool{
		client:  NewTracedClient(),
		baseURL: strings.TrimRight(baseURL, "/"),
		lang:    lang,
	}
}

func (lt *LanguageTool) Name() string { return "languagetool" }

type languageToolResponse struct {
	Matches []struct {
		Message      string `json:"message"`
		Offset       int    `json:"offset"`
		Length       int    `json:"length"`
		Replacements []struct {
			Value string `json:"value"`
		} `json:"replacements"`
	} `json:"matches"`
}

func (lt *LanguageTool) Analyze(ctx context.Context, text string) (Analysis, error) {
	matches, err := lt.Check(ctx, text)
	if err != nil {
		return Analysis{}, err
	}
	return fromMatches(lt.Name(), text, matches), nil
}

// Check submits text and returns the service's matches.
func (lt *LanguageTool) Check(ctx context.Context, text string) ([]Match, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("language", lt.lang)

	req, err := http.NewRequestWithContext(ctx, "POST", lt.baseURL+"/v2/check", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := lt.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Service: lt.Name(), Err: err}
	}

	if resp.StatusCode != 200 {
		return nil, &HTTPError{Service: lt.Name(), Status: resp.StatusCode, Body: string(resp.Body)}
	}

	var ltResp languageToolResponse
	if err := json.Unmarshal(resp.Body, &ltResp); err != nil {
		return nil, fmt.Errorf("languagetool response parse error: %w", err)
	}

	matches := make([]Match, 0, len(ltResp.Matches))
	for _, m := range ltResp.Matches {
		match := Match{Message: m.Message, Offset: m.Offset, Length: m.Length}
		for _, r := range m.Replacements {
			match.Replacements = append(match.Replacements, r.Value)
		}
		matches = append(matches, match)
	}

	log.RemoteMetrics(log.RemoteMetricsData{
		Service:    lt.Name(),
		Status:     resp.StatusCode,
		DNSMs:      float64(resp.Metrics.DNS.Milliseconds()),
		TLSMs:      float64(resp.Metrics.TLS.Milliseconds()),
		TTFBMs:     float64(resp.Metrics.TTFB.Milliseconds()),
		TotalMs:    float64(resp.Metrics.Total.Milliseconds()),
		ConnReused: resp.Metrics.ConnReused,
		Matches:    len(matches),
	})
	return matches, nil
}
