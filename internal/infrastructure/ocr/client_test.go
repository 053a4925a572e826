package ocr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"MediMind/internal/config"
)

const hocrPage = `<!DOCTYPE html>
<html><body>
<div class="ocr_page">
  <span class="ocr_line"><span class="ocrx_word">Paracetamol</span> <span class="ocrx_word">500mg</span></span>
  <span class="ocr_line"><span class="ocrx_word">1-0-1</span>
    <span class="ocrx_word">after</span><span class="ocrx_word">food</span></span>
</div>
</body></html>`

func newOCRServer(t *testing.T, contentType, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "image-bytes" || header.Filename != "rx.png" {
			t.Errorf("unexpected upload %q (%s)", data, header.Filename)
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(reply))
	}))
}

func TestExtractTextFormats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		contentType string
		reply       string
		want        string
	}{
		{"json text", "application/json", `{"text":"  Amoxicillin 250mg  "}`, "Amoxicillin 250mg"},
		{"json lines", "application/json; charset=utf-8", `{"lines":["Amoxicillin","", " 250mg  twice "]}`, "Amoxicillin 250mg twice"},
		{"hocr", "text/html; charset=utf-8", hocrPage, "Paracetamol 500mg 1-0-1 after food"},
		{"plain", "text/plain", "Cetirizine\n10mg\n\nnight\n", "Cetirizine 10mg night"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := newOCRServer(t, tc.contentType, tc.reply)
			defer srv.Close()

			client := NewClient(config.OCRConfig{Endpoint: srv.URL}, nil)
			got, err := client.ExtractText(context.Background(), []byte("image-bytes"), "uploads/rx.png")
			if err != nil {
				t.Fatalf("ExtractText: %v", err)
			}
			if got != tc.want {
				t.Fatalf("ExtractText = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractTextHTMLWithoutLines(t *testing.T) {
	t.Parallel()

	got, err := parseHOCR([]byte("<html><body><p>Ibuprofen</p>\n<p>400 mg</p></body></html>"))
	if err != nil {
		t.Fatalf("parseHOCR: %v", err)
	}
	if got != "Ibuprofen 400 mg" {
		t.Fatalf("parseHOCR = %q", got)
	}
}

func TestExtractTextServiceFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(config.OCRConfig{Endpoint: srv.URL}, nil).ExtractText(context.Background(), []byte("x"), "rx.png")
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestExtractTextRequiresEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(config.OCRConfig{}, nil).ExtractText(context.Background(), []byte("x"), ""); err == nil {
		t.Fatal("expected configuration error")
	}
}
