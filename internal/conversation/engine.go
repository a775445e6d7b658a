package conversation

import (
	"fmt"
	"strings"
)

// Result holds the outcome of one wizard turn. Nil fields mean "unchanged".
// An empty NewTemplate clears the chosen template.
type Result struct {
	Messages    []Message `json:"messages"`
	NewTemplate *string   `json:"newTemplate,omitempty"`
	NewProfile  *Profile  `json:"newProfile,omitempty"`
	NewStage    *Stage    `json:"newStage,omitempty"`
	ShowPreview bool      `json:"showPreview"`
}

// Advance maps one user answer to the next wizard state. It performs no I/O
// and never mutates profile; writes are returned as a fresh copy.
func Advance(input, template string, profile Profile, stage Stage, catalog Catalog) Result {
	input = strings.TrimSpace(input)
	switch {
	case stage == StageTemplate:
		return advanceTemplate(input, profile, catalog)
	case collecting(stage):
		return advanceCollect(input, profile, stage, catalog)
	case stage == StagePreview || stage == StageDeployed:
		return advanceFinished(input, profile, stage, catalog)
	default:
		return Result{Messages: []Message{greeting()}}
	}
}

func advanceTemplate(input string, profile Profile, catalog Catalog) Result {
	if t, ok := catalog.Lookup(input); ok {
		np := profile.Clone()
		np.Profession = t.Name
		return Result{
			Messages:    []Message{Question(StageName, np, catalog)},
			NewTemplate: ptr(t.Name),
			NewProfile:  &np,
			NewStage:    ptr(StageName),
		}
	}

	switch input {
	case ActionCreateNew, ActionCreateAnother:
		return Result{Messages: []Message{Question(StageTemplate, profile, catalog)}}
	case ActionHelp:
		m := botMessage("I'll ask you a short series of questions about your agent's name, personality, style and focus areas, then build it for you. You can answer in your own words or pick one of the suggestions. Choose a template to get started:", catalog.Names()...)
		m.SelectionType = SelectionSingle
		return Result{Messages: []Message{m}}
	case ActionViewAgents, ActionPreviewExisting:
		return Result{Messages: []Message{
			botMessage("📊 Your agents live on the dashboard, where you can preview, chat with and embed each of them. Want to build a new one?", ActionCreateNew, ActionViewAgents),
		}}
	}
	return Result{Messages: []Message{greeting()}}
}

func advanceCollect(input string, profile Profile, stage Stage, catalog Catalog) Result {
	if input == "" {
		return reask(profile, stage, catalog)
	}
	if stage == StageStyle && input == CustomStyleOption {
		return Result{
			Messages: []Message{Question(StageCustomStyle, profile, catalog)},
			NewStage: ptr(StageCustomStyle),
		}
	}

	np := profile.Clone()
	if !write(&np, stage, input) {
		return reask(profile, stage, catalog)
	}
	to := next(stage)
	return Result{
		Messages:    []Message{Question(to, np, catalog)},
		NewProfile:  &np,
		NewStage:    ptr(to),
		ShowPreview: to == StagePreview,
	}
}

func advanceFinished(input string, profile Profile, stage Stage, catalog Catalog) Result {
	name := agentName(profile)
	switch input {
	case ActionDeploy:
		return Result{
			Messages: []Message{Question(StageDeployed, profile, catalog)},
			NewStage: ptr(StageDeployed),
		}
	case ActionAdjust:
		return Result{
			Messages: []Message{
				botMessage(fmt.Sprintf("No problem! Let's fine-tune %s. We'll walk through each answer again, and whatever you say replaces the previous one.", name)),
				Question(StageName, profile, catalog),
			},
			NewStage: ptr(StageName),
		}
	case ActionCreateAnother:
		m := botMessage("🤖 Ready to create another amazing AI agent! Let's start by choosing what type of agent you'd like to create:", catalog.Names()...)
		m.SelectionType = SelectionSingle
		return Result{
			Messages:    []Message{m},
			NewTemplate: ptr(""),
			NewProfile:  &Profile{},
			NewStage:    ptr(StageTemplate),
		}
	case ActionPreview:
		m := botMessage(fmt.Sprintf("Here's a preview of %s. You can make changes anytime.", name), previewOptions...)
		m.ShowPreview = true
		return Result{Messages: []Message{m}, ShowPreview: true}
	}

	if stage == StageDeployed {
		switch input {
		case ActionChat:
			return Result{Messages: []Message{
				botMessage(fmt.Sprintf("🎊 Here's how to chat with %s: Go to your dashboard and click on %s to start chatting!", name, name), ActionDashboard, ActionCreateAnother, ActionEmbed),
			}}
		case ActionEmbed:
			return Result{Messages: []Message{
				botMessage(fmt.Sprintf(`💻 To embed %s on your website, visit your dashboard and click the "Embed" button next to %s for the HTML code!`, name, name), ActionDashboard, ActionCreateAnother, ActionChat),
			}}
		case ActionDashboard:
			return Result{Messages: []Message{
				botMessage(fmt.Sprintf("📊 Your dashboard is where you can manage %s and all your AI agents. Click the dashboard link to get started!", name), ActionCreateAnother, ActionChat, ActionEmbed),
			}}
		}
		return Result{Messages: []Message{Question(StageDeployed, profile, catalog)}}
	}

	return Result{
		Messages:    []Message{botMessage(RepromptApology), Question(StagePreview, profile, catalog)},
		ShowPreview: true,
	}
}

func greeting() Message {
	return botMessage(GreetingText, greetingOptions...)
}

// reask keeps the stage and repeats its question after an apology.
func reask(profile Profile, stage Stage, catalog Catalog) Result {
	return Result{Messages: []Message{botMessage(RepromptApology), Question(stage, profile, catalog)}}
}

func ptr[T any](v T) *T {
	return &v
}
