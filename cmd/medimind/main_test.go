package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type normalizeOutput struct {
	Medicines []struct {
		MedicineName string   `json:"medicine_name"`
		Timings      []string `json:"timings"`
	} `json:"medicines"`
	Eligible []json.RawMessage `json:"eligible"`
	Dropped  []struct {
		Reason string `json:"reason"`
	} `json:"dropped"`
	FallbackUsed bool   `json:"fallback_used"`
	ParseError   string `json:"parse_error"`
}

func TestRunNormalizeFromStdin(t *testing.T) {
	t.Parallel()

	in := strings.NewReader("```json\n[{\"medicine_name\":\"Cetirizine\",\"timings\":\"Night\"},{\"medicine_name\":\"N/A\"}]\n```")
	var out bytes.Buffer
	if code := runNormalize(nil, in, &out); code != 0 {
		t.Fatalf("exit code %d: %s", code, out.String())
	}

	var got normalizeOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if len(got.Medicines) != 2 || len(got.Eligible) != 1 || len(got.Dropped) != 1 {
		t.Fatalf("unexpected output: %+v", got)
	}
	if got.Medicines[0].Timings[0] != "night" {
		t.Fatalf("timings should be normalized: %+v", got.Medicines[0])
	}
}

func TestRunNormalizeFallbackFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reply.txt")
	if err := os.WriteFile(path, []byte("I could not read this prescription."), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if code := runNormalize([]string{"-file", path, "-withhold-fallback"}, strings.NewReader(""), &out); code != 0 {
		t.Fatalf("exit code %d: %s", code, out.String())
	}
	var got normalizeOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if !got.FallbackUsed || got.ParseError == "" || len(got.Eligible) != 0 || len(got.Medicines) != 1 {
		t.Fatalf("unexpected output: %+v", got)
	}
}
