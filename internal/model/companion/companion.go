package companion

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Column names shared by every store implementation.
const (
	ColumnName    = "name"
	ColumnSubject = "subject"
	ColumnTopic   = "topic"
)

// Subjects are the catalog's subject categories.
var Subjects = []string{"maths", "language", "science", "history", "coding", "economics"}

// Companion is a configured learning-session persona.
type Companion struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Topic     string    `json:"topic"`
	Voice     string    `json:"voice"`
	Style     string    `json:"style"`
	Duration  int       `json:"duration"`
	Color     string    `json:"color,omitempty"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Column returns the value of a filterable text column.
func (c Companion) Column(name string) (string, bool) {
	switch name {
	case ColumnName:
		return c.Name, true
	case ColumnSubject:
		return c.Subject, true
	case ColumnTopic:
		return c.Topic, true
	default:
		return "", false
	}
}

// Fields are the caller supplied attributes of a new companion.
type Fields struct {
	Name     string `json:"name" validate:"required,max=120"`
	Subject  string `json:"subject" validate:"required,max=60"`
	Topic    string `json:"topic" validate:"required,max=500"`
	Voice    string `json:"voice" validate:"required,max=40"`
	Style    string `json:"style" validate:"required,max=40"`
	Duration int    `json:"duration" validate:"required,min=1,max=240"`
	Color    string `json:"color,omitempty" validate:"omitempty,hexcolor"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Validate checks the fields against their declared constraints.
func (f Fields) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", ErrInvalidFields, err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		problems = append(problems, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidFields, strings.Join(problems, "; "))
}

// Normalize trims surrounding whitespace from the text fields.
func (f Fields) Normalize() Fields {
	f.Name = strings.TrimSpace(f.Name)
	f.Subject = strings.TrimSpace(f.Subject)
	f.Topic = strings.TrimSpace(f.Topic)
	f.Voice = strings.TrimSpace(f.Voice)
	f.Style = strings.TrimSpace(f.Style)
	f.Color = strings.TrimSpace(f.Color)
	return f
}

// HistoryEntry records one session launch of a companion by a user.
type HistoryEntry struct {
	ID          string    `json:"id"`
	CompanionID string    `json:"companion_id"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Seed provides the sample catalog used by the in-memory profile and companionctl.
func Seed() []Fields {
	return []Fields{
		{
			Name:     "Neura the Brainy Explorer",
			Subject:  "science",
			Topic:    "Neural Network of the Brain",
			Voice:    "female",
			Style:    "casual",
			Duration: 45,
			Color:    "#E5D0FF",
		},
		{
			Name:     "Countsy the Number Wizard",
			Subject:  "maths",
			Topic:    "Derivatives & Integrals",
			Voice:    "male",
			Style:    "formal",
			Duration: 30,
			Color:    "#FFDA6E",
		},
		{
			Name:     "Verba the Vocabulary Builder",
			Subject:  "language",
			Topic:    "English Literature",
			Voice:    "female",
			Style:    "casual",
			Duration: 30,
			Color:    "#BDE7FF",
		},
		{
			Name:     "Memo, the Memory Keeper",
			Subject:  "history",
			Topic:    "World Wars: Causes & Consequences",
			Voice:    "male",
			Style:    "formal",
			Duration: 15,
			Color:    "#FFC8E4",
		},
		{
			Name:     "Codey, the Logic Hacker",
			Subject:  "coding",
			Topic:    "Intro to If-Else Statements",
			Voice:    "female",
			Style:    "casual",
			Duration: 20,
			Color:    "#FFECC8",
		},
		{
			Name:     "The Market Maestro",
			Subject:  "economics",
			Topic:    "The Basics of Supply & Demand",
			Voice:    "male",
			Style:    "formal",
			Duration: 10,
			Color:    "#C8FFDF",
		},
	}
}
