package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"MediMind/internal/config"
	"MediMind/internal/ports"
)

const maxResponseBytes = 8 << 20

// Client sends prescription images to an OCR service as multipart uploads.
// The service may answer with JSON ({"text": ...} or {"lines": [...]}),
// hOCR/HTML, or plain text.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *zap.Logger
}

var _ ports.TextExtractor = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(cfg config.OCRConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With(zap.String("component", "ocr")),
	}
}

type jsonReply struct {
	Text  string   `json:"text"`
	Lines []string `json:"lines"`
}

// ExtractText uploads the image and returns the recognized text with lines
// joined by single spaces.
func (c *Client) ExtractText(ctx context.Context, image []byte, filename string) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("ocr endpoint is not configured")
	}
	if filename == "" {
		filename = "prescription.jpg"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(image)); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("ocr service returned %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	text, err := decodeReply(resp.Header.Get("Content-Type"), raw)
	if err != nil {
		return "", err
	}
	c.logger.Debug("text recognized", zap.String("filename", filename), zap.Int("length", len(text)))
	return text, nil
}

func decodeReply(contentType string, raw []byte) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/json":
		var reply jsonReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return "", fmt.Errorf("decode ocr json: %w", err)
		}
		if len(reply.Lines) > 0 {
			return joinLines(reply.Lines), nil
		}
		return strings.TrimSpace(reply.Text), nil
	case strings.Contains(mediaType, "html") || strings.Contains(mediaType, "xml"):
		return parseHOCR(raw)
	default:
		return joinLines(strings.Split(string(raw), "\n")), nil
	}
}

// parseHOCR reads hOCR output: words of each ocr_line are joined, then lines.
// Documents without line markup fall back to their visible text.
func parseHOCR(raw []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse hocr: %w", err)
	}

	var lines []string
	doc.Find(".ocr_line").Each(func(_ int, line *goquery.Selection) {
		var words []string
		line.Find(".ocrx_word").Each(func(_ int, word *goquery.Selection) {
			words = append(words, word.Text())
		})
		if len(words) == 0 {
			words = []string{line.Text()}
		}
		lines = append(lines, strings.Join(words, " "))
	})
	if len(lines) == 0 {
		return strings.Join(strings.Fields(doc.Find("body").Text()), " "), nil
	}
	return joinLines(lines), nil
}

func joinLines(lines []string) string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, " ")
}
