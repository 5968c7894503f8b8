package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"cchat/internal/apperr"
)

const cloudinaryEndpoint = "https://api.cloudinary.com/v1_1"

// Cloudinary performs unsigned uploads with an upload preset.
type Cloudinary struct {
	CloudName string
	Preset    string
	MaxSize   int64
	// Endpoint overrides the API root, mainly for tests.
	Endpoint string
	Client   *http.Client
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload implements Uploader.
func (c *Cloudinary) Upload(ctx context.Context, path string) (string, error) {
	f, _, err := openChecked(path, c.MaxSize)
	if err != nil {
		return "", err
	}
	defer f.Close()

	// Build multipart body
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", apperr.Upload(err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", apperr.Upload(fmt.Errorf("read attachment: %w", err))
	}
	for _, field := range [][2]string{{"upload_preset", c.Preset}, {"cloud_name", c.CloudName}} {
		if err := w.WriteField(field[0], field[1]); err != nil {
			return "", apperr.Upload(fmt.Errorf("write %s: %w", field[0], err))
		}
	}
	if err := w.Close(); err != nil {
		return "", apperr.Upload(err)
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = cloudinaryEndpoint
	}
	url := fmt.Sprintf("%s/%s/image/upload", endpoint, c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", apperr.Upload(err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", apperr.Upload(err)
	}
	defer resp.Body.Close()

	var out cloudinaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.Upload(fmt.Errorf("decode upload response (%d): %w", resp.StatusCode, err))
	}
	if out.Error != nil {
		return "", apperr.Upload(fmt.Errorf("cloudinary: %s", out.Error.Message))
	}
	if resp.StatusCode >= 300 || out.SecureURL == "" {
		return "", apperr.Upload(fmt.Errorf("cloudinary: status %d", resp.StatusCode))
	}
	return out.SecureURL, nil
}
