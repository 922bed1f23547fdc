package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/disintegration/imaging"

	"bgremover/internal/config"
)

const (
	removePath = "/api/remove"
	// maxErrorBody bounds how much of a failed response is kept for logging.
	maxErrorBody = 512
	// defaultMaxResult bounds a successful response body.
	defaultMaxResult = 64 << 20
)

// Remote runs inference on a rembg-compatible HTTP server. The model is
// selected per call through the "model" form field, so the server may host
// several models while this process stays pinned to one.
type Remote struct {
	model     string
	endpoint  string
	client    *http.Client
	maxResult int64
}

// NewRemote validates the endpoint and returns an unwarmed session.
func NewRemote(cfg config.EngineConfig) (*Remote, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse engine url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("engine url must be http or https, got %q", cfg.URL)
	}
	return &Remote{
		model:     cfg.Model,
		endpoint:  strings.TrimRight(base.String(), "/") + removePath,
		client:    &http.Client{},
		maxResult: defaultMaxResult,
	}, nil
}

// Model implements Session.
func (r *Remote) Model() string { return r.model }

// Remove implements Session.
func (r *Remote) Remove(ctx context.Context, img []byte) ([]byte, error) {
	if len(img) == 0 {
		return nil, errors.New("empty image")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "upload")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(img); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.WriteField("model", r.model); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "image/png")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	out, err := io.ReadAll(io.LimitReader(resp.Body, r.maxResult+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(out)) > r.maxResult {
		return nil, fmt.Errorf("engine response exceeds %d bytes", r.maxResult)
	}
	if len(out) == 0 {
		return nil, errors.New("engine returned an empty body")
	}
	return out, nil
}

// warmup pushes a 1x1 image through the model so the server loads its
// weights before the first real request.
func (r *Remote) warmup(ctx context.Context) error {
	probe := imaging.New(1, 1, color.White)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, probe, imaging.PNG); err != nil {
		return fmt.Errorf("encode probe image: %w", err)
	}
	_, err := r.Remove(ctx, buf.Bytes())
	return err
}
