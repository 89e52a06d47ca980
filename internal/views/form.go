// Package views holds the state behind the three screens of the app: the
// persona listing, the creation form and the chat view.
package views

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ent0n29/amical/internal/store"
)

const (
	MinAge = 1
	MaxAge = 120
)

var dailyTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// AgeText is the age as typed into the form. JSON numbers are accepted too.
type AgeText string

func (a *AgeText) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		*a = ""
		return nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*a = AgeText(s)
		return nil
	}
	*a = AgeText(raw)
	return nil
}

// CreateForm is the persona creation form as submitted.
type CreateForm struct {
	Name             string  `json:"name"`
	Age              AgeText `json:"age"`
	Occupation       string  `json:"occupation"`
	Personality      string  `json:"personality"`
	Tone             string  `json:"tone"`
	Background       string  `json:"background"`
	Dream            string  `json:"dream"`
	FamilyInfo       string  `json:"family_info"`
	Story            string  `json:"story"`
	DailyMessageTime string  `json:"daily_message_time"`
}

// ValidationError maps form fields to user-facing messages.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "invalid persona form: " + strings.Join(names, ", ")
}

func (e *ValidationError) Unwrap() error { return store.ErrInvalidPersona }

// Validate trims the form and turns it into a persona insert.
func (f CreateForm) Validate() (store.NewPersona, error) {
	fields := map[string]string{}
	required := func(name, value string) string {
		value = strings.TrimSpace(value)
		if value == "" {
			fields[name] = "Ce champ est obligatoire."
		}
		return value
	}

	out := store.NewPersona{
		Name:        required("name", f.Name),
		Occupation:  required("occupation", f.Occupation),
		Personality: required("personality", f.Personality),
		Tone:        required("tone", f.Tone),
		Background:  required("background", f.Background),
		Dream:       strings.TrimSpace(f.Dream),
		FamilyInfo:  strings.TrimSpace(f.FamilyInfo),
		Story:       strings.TrimSpace(f.Story),
	}

	age := strings.TrimSpace(string(f.Age))
	switch n, err := strconv.Atoi(age); {
	case age == "":
		fields["age"] = "Ce champ est obligatoire."
	case err != nil || n < MinAge || n > MaxAge:
		fields["age"] = "L'âge doit être un nombre entre 1 et 120."
	default:
		out.Age = n
	}

	out.DailyMessageTime = strings.TrimSpace(f.DailyMessageTime)
	if out.DailyMessageTime == "" {
		out.DailyMessageTime = store.DefaultDailyMessageTime
	} else if !dailyTimePattern.MatchString(out.DailyMessageTime) {
		fields["daily_message_time"] = "L'heure doit être au format HH:MM."
	}

	if len(fields) > 0 {
		return store.NewPersona{}, &ValidationError{Fields: fields}
	}
	return out, nil
}
