package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hammamikhairi/ottochat/internal/domain"
)

type speechPayload struct {
	Text string `json:"text"`
}

type transcribeResponse struct {
	Transcription string `json:"transcription"`
}

// Synthesize asks the backend for speech audio. A 204 or an empty body
// returns (nil, nil): there is nothing to play.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	const op = "synthesize speech"

	body, err := jsonBody(speechPayload{Text: text})
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.bounded(ctx)
	defer cancel()

	resp, err := c.do(ctx, request{
		op:          op,
		method:      http.MethodPost,
		path:        "/speech",
		body:        body,
		contentType: "application/json",
		auth:        true,
	})
	if err != nil {
		return nil, transportError(op, err)
	}

	switch {
	case resp.status == http.StatusNoContent:
		return nil, nil
	case resp.status < 200 || resp.status > 299:
		return nil, &domain.APIError{Op: op, Status: resp.status, Detail: normalizeError(resp.status, resp.body)}
	case len(resp.body) == 0:
		return nil, nil
	}

	c.log.Debug("api: got %d bytes of audio", len(resp.body))
	return resp.body, nil
}

// Transcribe uploads recorded audio as multipart field audio_file and
// returns the transcription.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	const op = "transcribe"

	if filename == "" {
		filename = "recording.wav"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.SetBoundary("ottochat-" + uuid.NewString()); err != nil {
		return "", fmt.Errorf("%s: set boundary: %w", op, err)
	}
	part, err := mw.CreateFormFile("audio_file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("%s: create form file: %w", op, err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("%s: read audio: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%s: close form: %w", op, err)
	}

	var out transcribeResponse
	if _, err := c.call(ctx, request{
		op:          op,
		method:      http.MethodPost,
		path:        "/transcribe",
		body:        &buf,
		contentType: mw.FormDataContentType(),
		auth:        true,
	}, &out); err != nil {
		return "", err
	}
	return out.Transcription, nil
}
