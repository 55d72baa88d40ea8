package model

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// LotForm holds the raw text of the add-lot form.
type LotForm struct {
	Name      string
	Latitude  string
	Longitude string
	Capacity  string
	Available string
	Rate      string
}

// LotDraft is the create-lot request body.
type LotDraft struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Capacity  int     `json:"capacity"`
	Available int     `json:"available"`
	Rate      float64 `json:"rate"`
}

// ValidationError lists the form fields that failed to parse, keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "invalid form"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

// Field returns the message for a single field, or "".
func (e *ValidationError) Field(name string) string {
	if e == nil {
		return ""
	}
	return e.Fields[name]
}

// Parse validates the form and converts it into a draft.
func (f LotForm) Parse() (LotDraft, error) {
	fields := map[string]string{}
	var draft LotDraft

	draft.Name = strings.TrimSpace(f.Name)
	if draft.Name == "" {
		fields["name"] = "required"
	}

	draft.Latitude = parseFloatField(fields, "latitude", f.Latitude)
	if _, bad := fields["latitude"]; !bad && (draft.Latitude < -90 || draft.Latitude > 90) {
		fields["latitude"] = "must be between -90 and 90"
	}
	draft.Longitude = parseFloatField(fields, "longitude", f.Longitude)
	if _, bad := fields["longitude"]; !bad && (draft.Longitude < -180 || draft.Longitude > 180) {
		fields["longitude"] = "must be between -180 and 180"
	}

	draft.Capacity = parseIntField(fields, "capacity", f.Capacity)
	if _, bad := fields["capacity"]; !bad && draft.Capacity < 0 {
		fields["capacity"] = "must not be negative"
	}
	draft.Available = parseIntField(fields, "available", f.Available)
	if _, bad := fields["available"]; !bad {
		if draft.Available < 0 {
			fields["available"] = "must not be negative"
		} else if _, capBad := fields["capacity"]; !capBad && draft.Available > draft.Capacity {
			fields["available"] = "must not exceed capacity"
		}
	}

	draft.Rate = parseFloatField(fields, "rate", f.Rate)
	if _, bad := fields["rate"]; !bad && draft.Rate < 0 {
		fields["rate"] = "must not be negative"
	}

	if len(fields) > 0 {
		return LotDraft{}, &ValidationError{Fields: fields}
	}
	return draft, nil
}

func parseFloatField(fields map[string]string, name string, raw string) float64 {
	text := strings.TrimSpace(raw)
	if text == "" {
		fields[name] = "required"
		return 0
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		fields[name] = "must be a number"
		return 0
	}
	return value
}

func parseIntField(fields map[string]string, name string, raw string) int {
	text := strings.TrimSpace(raw)
	if text == "" {
		fields[name] = "required"
		return 0
	}
	value, err := strconv.Atoi(text)
	if err != nil {
		fields[name] = "must be a whole number"
		return 0
	}
	return value
}
