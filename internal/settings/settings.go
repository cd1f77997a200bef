package settings

import (
	"fmt"
	"strings"
)

// ReminderRule configures one class of notification. Immediate rules fire
// at creation time; offset rules fire at (appointment date + OffsetDays)
// @ Hour:Minute civil time in the reference zone.
type ReminderRule struct {
	Active     bool   `json:"active"`
	Immediate  bool   `json:"immediate"`
	OffsetDays int    `json:"offsetDays"`
	Hour       int    `json:"hour"`
	Minute     int    `json:"minute"`
	Template   string `json:"template"`
}

// Placeholders are the literal tokens substituted into rule templates.
type Placeholders struct {
	ClientName     string `json:"clientName"`
	ConsultantName string `json:"consultantName"`
	DateHe         string `json:"dateHe"`
	TimeHe         string `json:"timeHe"`
}

type Settings struct {
	Reminders    []ReminderRule `json:"reminders"`
	Placeholders Placeholders   `json:"placeholders"`
}

// Tokens are the rendered values substituted for the placeholder strings.
type Tokens struct {
	ClientName     string
	ConsultantName string
	DateHe         string
	TimeHe         string
}

func defaultPlaceholders() Placeholders {
	return Placeholders{
		ClientName:     "{שם}",
		ConsultantName: "{יועץ}",
		DateHe:         "{תאריך}",
		TimeHe:         "{שעה}",
	}
}

// Defaults is the built-in rule set used when no settings document exists
// or the stored one fails validation: immediate on creation, day before
// at 08:00, morning of at 08:00.
func Defaults() Settings {
	return Settings{
		Reminders: []ReminderRule{
			{
				Active:    true,
				Immediate: true,
				Template:  "שלום {שם}, נקבעה לך פגישה בתאריך {תאריך} בשעה {שעה} עם {יועץ}. אם אינך יכול/ה להגיע אנא עדכן/ני.",
			},
			{
				Active:     true,
				OffsetDays: -1,
				Hour:       8,
				Template:   "תזכורת: מחר בשעה {שעה} יש לך פגישה עם {יועץ}. נתראה!",
			},
			{
				Active:   true,
				Hour:     8,
				Template: "בוקר טוב! היום בשעה {שעה} נקבעה פגישה עם {יועץ}. בהצלחה!",
			},
		},
		Placeholders: defaultPlaceholders(),
	}
}

// Validate checks a candidate settings document and fills empty
// placeholder tokens with the defaults.
func Validate(s Settings) (Settings, error) {
	if len(s.Reminders) == 0 {
		return Settings{}, fmt.Errorf("at least one reminder rule is required")
	}
	for i, r := range s.Reminders {
		if r.Hour < 0 || r.Hour > 23 {
			return Settings{}, fmt.Errorf("reminder %d: hour %d out of range", i, r.Hour)
		}
		if r.Minute < 0 || r.Minute > 59 {
			return Settings{}, fmt.Errorf("reminder %d: minute %d out of range", i, r.Minute)
		}
		if strings.TrimSpace(r.Template) == "" {
			return Settings{}, fmt.Errorf("reminder %d: template is required", i)
		}
	}
	def := defaultPlaceholders()
	if s.Placeholders.ClientName == "" {
		s.Placeholders.ClientName = def.ClientName
	}
	if s.Placeholders.ConsultantName == "" {
		s.Placeholders.ConsultantName = def.ConsultantName
	}
	if s.Placeholders.DateHe == "" {
		s.Placeholders.DateHe = def.DateHe
	}
	if s.Placeholders.TimeHe == "" {
		s.Placeholders.TimeHe = def.TimeHe
	}
	return s, nil
}

// Render substitutes the four placeholder tokens into a rule template.
func (s Settings) Render(template string, tokens Tokens) string {
	r := strings.NewReplacer(
		s.Placeholders.ClientName, tokens.ClientName,
		s.Placeholders.ConsultantName, tokens.ConsultantName,
		s.Placeholders.DateHe, tokens.DateHe,
		s.Placeholders.TimeHe, tokens.TimeHe,
	)
	return r.Replace(template)
}
