package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/cityofhelsinki/mvj/internal/config"
	"github.com/cityofhelsinki/mvj/internal/filescan/domain"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const filesField = "FILES"

// StatusError is a non-200 answer from the scan service.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("file scan service returned %d", e.StatusCode)
}

type scanResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Result []domain.ScanResult `json:"result"`
	} `json:"data"`
}

// Client posts files to the scan service under a random name so the original file name
// never leaves the system.
type Client struct {
	http *http.Client
	core *config.CoreConfig
}

func NewClient(core *config.CoreConfig) domain.Scanner {
	return &Client{
		http: &http.Client{Timeout: 2 * time.Minute},
		core: core,
	}
}

func (c *Client) Scan(ctx context.Context, content io.Reader) (*domain.ScanResult, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	mtype := mimetype.Detect(data)
	name := uuid.NewString() + mtype.Extension()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, filesField, name))
	header.Set("Content-Type", mtype.String())
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.core.FileScanServiceURL, "/") + "/scan"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var parsed scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if !parsed.Success {
		return nil, domain.ErrScanFailed
	}
	for _, r := range parsed.Data.Result {
		if r.Name == name {
			return &r, nil
		}
	}
	if len(parsed.Data.Result) == 1 {
		return &parsed.Data.Result[0], nil
	}
	return nil, domain.ErrMalformedResponse
}
