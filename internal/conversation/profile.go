package conversation

import (
	"strings"
)

// Profile accumulates the answers collected by the wizard. Fields are only ever
// written or overwritten, never removed.
type Profile struct {
	Profession          string   `json:"profession,omitempty"`
	Name                string   `json:"name,omitempty"`
	Personality         string   `json:"personality,omitempty"`
	CommunicationStyle  string   `json:"communicationStyle,omitempty"`
	JobTitle            string   `json:"jobTitle,omitempty"`
	TopTasks            string   `json:"topTasks,omitempty"`
	LifeAreas           []string `json:"lifeAreas,omitempty"`
	ProblemSolvingStyle string   `json:"problemSolvingStyle,omitempty"`
	StressResponse      string   `json:"stressResponse,omitempty"`
	ResponseDetail      string   `json:"responseDetail,omitempty"`
	ForbiddenTopics     string   `json:"forbiddenTopics,omitempty"`
	Quirks              string   `json:"quirks,omitempty"`
	Catchphrase         string   `json:"catchphrase,omitempty"`
	AdditionalInfo      string   `json:"additionalInfo,omitempty"`
	OwnerName           string   `json:"ownerName,omitempty"`
	OwnerEmail          string   `json:"ownerEmail,omitempty"`
	OwnerPhone          string   `json:"ownerPhone,omitempty"`
}

func (p Profile) Clone() Profile {
	out := p
	if p.LifeAreas != nil {
		out.LifeAreas = append([]string(nil), p.LifeAreas...)
	}
	return out
}

type Owner struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Summary is the read-only view of a profile shown next to the wizard.
type Summary struct {
	Name         string   `json:"name"`
	Personality  string   `json:"personality"`
	Role         string   `json:"role"`
	Specialties  []string `json:"specialties"`
	Approach     string   `json:"approach"`
	Catchphrase  *string  `json:"catchphrase"`
	Quirks       *string  `json:"quirks"`
	Restrictions *string  `json:"restrictions"`
	Owner        Owner    `json:"owner"`
}

func BuildSummary(p Profile) Summary {
	specialties := p.LifeAreas
	if specialties == nil {
		specialties = []string{}
	}
	return Summary{
		Name:         or(p.Name, "Unnamed Agent"),
		Personality:  or(p.Personality, "Helpful AI assistant") + " with " + or(p.CommunicationStyle, "balanced communication"),
		Role:         or(p.JobTitle, "AI Assistant"),
		Specialties:  specialties,
		Approach:     or(p.ProblemSolvingStyle, "Balanced problem-solving"),
		Catchphrase:  optional(p.Catchphrase),
		Quirks:       optional(p.Quirks),
		Restrictions: optional(p.ForbiddenTopics),
		Owner:        Owner{Name: p.OwnerName, Email: p.OwnerEmail, Phone: p.OwnerPhone},
	}
}

// PersonalityPrompt renders the persona text stored on the chatbot and later
// injected into its system prompt.
func PersonalityPrompt(p Profile) string {
	var b strings.Builder
	b.WriteString("You are " + p.Name + ", a " + p.JobTitle + ". ")
	if p.Personality != "" {
		b.WriteString("Your personality: " + p.Personality + ". ")
	}
	if p.CommunicationStyle != "" {
		b.WriteString("Communication style: " + p.CommunicationStyle + ". ")
	}
	if p.ProblemSolvingStyle != "" {
		b.WriteString("Problem-solving approach: " + p.ProblemSolvingStyle + ". ")
	}
	if p.StressResponse != "" {
		b.WriteString("When user is stressed: " + p.StressResponse + ". ")
	}
	if p.ResponseDetail != "" {
		b.WriteString("Response detail: " + p.ResponseDetail + ". ")
	}
	if !isNone(p.Catchphrase) {
		b.WriteString(`Your catchphrase: "` + p.Catchphrase + `". `)
	}
	if !isNone(p.Quirks) {
		b.WriteString("Your quirk: " + p.Quirks + ". ")
	}
	if !isNone(p.ForbiddenTopics) {
		b.WriteString("Never discuss: " + p.ForbiddenTopics + ". ")
	}
	if p.TopTasks != "" {
		b.WriteString("Your main tasks: " + p.TopTasks + ". ")
	}
	if len(p.LifeAreas) > 0 {
		b.WriteString("You assist with: " + strings.Join(p.LifeAreas, ", ") + ". ")
	}
	return strings.TrimSpace(b.String())
}

// isNone treats blank answers and the literal "None" as absent.
func isNone(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "none")
}

func optional(s string) *string {
	if isNone(s) {
		return nil
	}
	return &s
}

func or(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
