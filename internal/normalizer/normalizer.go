// Package normalizer converts unreliable inference replies into validated medicine records.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"MediMind/internal/domain"
)

// Drop reasons reported for records that are not eligible for scheduling.
const (
	ReasonPlaceholderName = "placeholder medicine name"
	ReasonNoTimings       = "no recognized timings"
	ReasonFallbackRecord  = "fallback record not persisted"
)

var errNotArray = errors.New("reply is not a JSON array")

// Rejection explains why a normalized record will not become a schedule.
type Rejection struct {
	Index  int                   `json:"index"`
	Record domain.MedicineRecord `json:"record"`
	Reason string                `json:"reason"`
}

// Result is the outcome of normalizing one reply.
type Result struct {
	// Medicines holds every normalized record, including the ones that are not eligible.
	Medicines []domain.MedicineRecord
	// Eligible holds the records that may be persisted as schedules, in source order.
	Eligible []domain.MedicineRecord
	Dropped  []Rejection
	// FallbackUsed is set when the reply could not be parsed and the placeholder was produced.
	FallbackUsed bool
	// ParseErr carries the parse failure behind a fallback.
	ParseErr error
}

// Normalizer applies the fence-strip, parse, fill and filter steps to inference replies.
type Normalizer struct {
	persistFallback bool
}

// New builds a Normalizer. persistFallback controls whether the placeholder record
// produced for unparsable replies is eligible for scheduling.
func New(persistFallback bool) *Normalizer {
	return &Normalizer{persistFallback: persistFallback}
}

// FallbackRecord is produced when a reply cannot be parsed at all.
func FallbackRecord() domain.MedicineRecord {
	return domain.MedicineRecord{
		MedicineName: domain.UnknownMedicine,
		Dosage:       "As prescribed",
		Quantity:     domain.NotAvailable,
		Frequency:    "Daily",
		Timings:      []domain.Timing{domain.TimingMorning},
	}
}

// Normalize never fails: parse errors are absorbed into the fallback record and
// reported through Result.FallbackUsed and Result.ParseErr.
func (n *Normalizer) Normalize(raw string) Result {
	items, err := parseArray(StripCodeFence(raw))
	if err != nil {
		fallback := FallbackRecord()
		res := Result{
			Medicines:    []domain.MedicineRecord{fallback},
			FallbackUsed: true,
			ParseErr:     err,
		}
		if n.persistFallback {
			res.Eligible = []domain.MedicineRecord{fallback}
		} else {
			res.Dropped = []Rejection{{Index: 0, Record: fallback, Reason: ReasonFallbackRecord}}
		}
		return res
	}

	res := Result{
		Medicines: make([]domain.MedicineRecord, 0, len(items)),
	}
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}

		record := normalizeRecord(obj)
		index := len(res.Medicines)
		res.Medicines = append(res.Medicines, record)

		if reason := ineligibleReason(record); reason != "" {
			res.Dropped = append(res.Dropped, Rejection{Index: index, Record: record, Reason: reason})
			continue
		}
		res.Eligible = append(res.Eligible, record)
	}

	return res
}

// StripCodeFence removes a leading ``` marker (with an optional language tag) and a
// trailing ``` marker.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimLeftFunc(s, isLanguageTagRune)
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isLanguageTagRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
}

func parseArray(s string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode reply: trailing data after JSON value")
	}

	items, ok := value.([]any)
	if !ok {
		return nil, errNotArray
	}
	return items, nil
}

func normalizeRecord(obj map[string]any) domain.MedicineRecord {
	return domain.MedicineRecord{
		MedicineName: textField(obj, "medicine_name"),
		Dosage:       textField(obj, "dosage"),
		Quantity:     textField(obj, "quantity"),
		Frequency:    textField(obj, "frequency"),
		Timings:      timingsField(obj["timings"]),
	}
}

// textField returns the trimmed string form of obj[key]; null, missing and
// structured values become the N/A placeholder.
func textField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return domain.NotAvailable
	}
}

func timingsField(value any) []domain.Timing {
	var candidates []string
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	case string:
		candidates = strings.Split(v, ",")
	}

	timings := make([]domain.Timing, 0, len(candidates))
	seen := make(map[domain.Timing]struct{}, len(candidates))
	for _, candidate := range candidates {
		timing, ok := domain.ParseTiming(candidate)
		if !ok {
			continue
		}
		if _, dup := seen[timing]; dup {
			continue
		}
		seen[timing] = struct{}{}
		timings = append(timings, timing)
	}

	if len(timings) == 0 {
		return []domain.Timing{domain.TimingMorning}
	}
	return timings
}

func ineligibleReason(record domain.MedicineRecord) string {
	if domain.IsPlaceholderName(record.MedicineName) {
		return ReasonPlaceholderName
	}
	if len(record.Timings) == 0 {
		return ReasonNoTimings
	}
	return ""
}
