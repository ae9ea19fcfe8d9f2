package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ResponseDataError reports a StatFin response that lacks the columns an import needs.
type ResponseDataError struct {
	Code   string
	Reason string
}

func (e *ResponseDataError) Error() string {
	return fmt.Sprintf("statfin response for %q: %s", e.Code, e.Reason)
}

// StatusError is a non-200 answer from StatFin. It aborts the whole run.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("statfin %s returned %d", e.URL, e.StatusCode)
}

type statFinQuery struct {
	Query    []statFinSelection `json:"query"`
	Response statFinFormat      `json:"response"`
}

type statFinSelection struct {
	Code      string          `json:"code"`
	Selection statFinSelector `json:"selection"`
}

type statFinSelector struct {
	Filter string   `json:"filter"`
	Values []string `json:"values"`
}

type statFinFormat struct {
	Format string `json:"format"`
}

type statFinColumn struct {
	Code    string `json:"code"`
	Text    string `json:"text"`
	Type    string `json:"type"`
	Comment string `json:"comment"`
}

type statFinComment struct {
	Variable string `json:"variable"`
	Value    string `json:"value"`
	Comment  string `json:"comment"`
}

type statFinRow struct {
	Key    []string `json:"key"`
	Values []string `json:"values"`
}

type statFinMetadata struct {
	Updated string `json:"updated"`
	Label   string `json:"label"`
	Source  string `json:"source"`
}

type statFinResponse struct {
	Columns  []statFinColumn   `json:"columns"`
	Comments []statFinComment  `json:"comments"`
	Data     []statFinRow      `json:"data"`
	Metadata []statFinMetadata `json:"metadata"`
}

const missingValue = "."

func postQuery(ctx context.Context, client *http.Client, url string, query statFinQuery) ([]byte, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// ParseStatFinTimestamp parses "2024-02-15T06.00.00Z", where the time part uses dots.
func ParseStatFinTimestamp(value string) (time.Time, error) {
	datePart, timePart, found := strings.Cut(value, "T")
	if found {
		value = datePart + "T" + strings.ReplaceAll(timePart, ".", ":")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse statfin timestamp %q: %w", value, err)
	}
	return t, nil
}

// Report counts rows touched by one import run.
type Report struct {
	Created int
	Updated int
	Skipped int
}

func (r *Report) add(created bool) {
	if created {
		r.Created++
		return
	}
	r.Updated++
}

func (r Report) Merge(o Report) Report {
	return Report{
		Created: r.Created + o.Created,
		Updated: r.Updated + o.Updated,
		Skipped: r.Skipped + o.Skipped,
	}
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode statfin response: %w", err)
	}
	return nil
}
