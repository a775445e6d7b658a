package conversation

import (
	"fmt"
	"sort"
	"strings"
)

type Stage int

const (
	StageTemplate       Stage = 0
	StageName           Stage = 1
	StagePersonality    Stage = 2
	StageStyle          Stage = 3
	StageJobTitle       Stage = 4
	StageTopTasks       Stage = 5
	StageLifeAreas      Stage = 6
	StageProblemSolving Stage = 7
	StageStress         Stage = 8
	StageDetail         Stage = 9
	StageForbidden      Stage = 10
	StageQuirks         Stage = 11
	StageCatchphrase    Stage = 12
	StageAdditional     Stage = 13
	StageOwnerName      Stage = 14
	StageOwnerEmail     Stage = 15
	StageOwnerPhone     Stage = 16
	StagePreview        Stage = 17
	StageDeployed       Stage = 18
	// StageCustomStyle is entered from StageStyle when the user wants to
	// describe a communication style in their own words.
	StageCustomStyle Stage = 31
)

const (
	SelectionSingle   = "single"
	SelectionMultiple = "multiple"
)

const (
	CustomStyleOption = "Custom style (I'll describe it)"

	ActionDeploy          = "Deploy Agent"
	ActionAdjust          = "Make Adjustments"
	ActionCreateAnother   = "Create Another Agent"
	ActionPreview         = "Preview Agent"
	ActionChat            = "Chat with Agent"
	ActionEmbed           = "Get Embed Code"
	ActionDashboard       = "View Dashboard"
	ActionCreateNew       = "Create New Agent"
	ActionPreviewExisting = "Preview Existing Agent"
	ActionViewAgents      = "View My Agents"
	ActionHelp            = "Get Help"
)

const (
	RepromptApology = "I didn't quite understand that. Let me ask the question again to keep us moving forward with creating your AI agent."
	GreetingText    = "I'm BotSmith, and I'm here to help create your perfect AI agent! What would you like to do?"
)

// Message is one outbound wizard bubble. Options, when present, are rendered
// as choices; a multiple selection is submitted as one comma-joined answer.
type Message struct {
	Type          string   `json:"type"`
	Content       string   `json:"content"`
	Options       []string `json:"options,omitempty"`
	SelectionType string   `json:"selectionType,omitempty"`
	ButtonText    string   `json:"buttonText,omitempty"`
	ShowPreview   bool     `json:"showPreview,omitempty"`
}

func botMessage(content string, options ...string) Message {
	return Message{Type: "bot", Content: content, Options: options}
}

var (
	styleOptions = []string{
		`Direct and concise ("Here's what you need to do...")`,
		`Warm and conversational ("Hey there! I was thinking we could...")`,
		`Witty and humorous ("Another day, another existential crisis to solve!")`,
		`Formal and professional ("I would like to suggest the following course of action...")`,
		CustomStyleOption,
	}
	lifeAreaOptions = []string{
		"Personal productivity (because your to-do list is currently in 17 different places)",
		"Health & fitness (for when you need someone to remind you that, yes, the gym still exists)",
		`Creative projects (for battling the blank page and "I have no ideas" syndrome)`,
		"Learning & education (because that skill isn't going to learn itself)",
		"Home management (for when adulting is just too much)",
		"Financial tracking (so you can pretend to be responsible with money)",
		"Emotional support (for those moments when humans just don't get it)",
		"Entertainment & recommendations (because you've watched everything on Netflix... twice)",
	}
	problemSolvingOptions = []string{
		"Offer multiple solutions with pros/cons (for the overthinkers who need ALL the options)",
		`Give one clear recommendation (for the "just tell me what to do" crowd)`,
		"Ask questions to help me figure it out myself (for those who want to feel smart)",
		"Provide step-by-step guidance (for when you need your hand held... no judgment)",
	}
	stressOptions = []string{
		`With calm, practical solutions ("Here's what we can do about this...")`,
		`With empathy and emotional support ("That sounds really tough. I'm here for you.")`,
		`With humor to lighten the mood ("Well, at least your hair still looks great!")`,
		"By giving you space and minimal responses (sometimes less is more)",
	}
	detailOptions = []string{
		`Ultra-concise (bullet points, minimal text, for the "get to the point" people)`,
		`Balanced (clear but complete, for the Goldilocks "just right" crowd)`,
		`Detailed (thorough explanations, for the "I want to understand everything" folks)`,
		`Adaptive (brief at first, with option to expand, for the "it depends on my mood" types)`,
	}
	previewOptions  = []string{ActionDeploy, ActionAdjust, ActionCreateAnother}
	deployedOptions = []string{ActionChat, ActionEmbed, ActionCreateAnother, ActionDashboard}
	greetingOptions = []string{ActionCreateNew, ActionPreviewExisting, ActionViewAgents, ActionHelp}
)

// Question renders the prompt shown on entering a stage. It serves both forward
// transitions and re-asks.
func Question(stage Stage, p Profile, catalog Catalog) Message {
	name := agentName(p)
	switch stage {
	case StageTemplate:
		m := botMessage("🤖 Let's create your AI agent! Start by choosing what type of agent you'd like to create:", catalog.Names()...)
		m.SelectionType = SelectionSingle
		return m
	case StageName:
		return botMessage(fmt.Sprintf(`🤖 Awesome! I'll help you create an AI agent for %s. Let's start by giving your AI agent a name - this creates an immediate personal connection. Could be anything from "Alex" to "Captain Awesome" to "Pixel", whatever feels right!`, or(p.Profession, "you")))
	case StagePersonality:
		return botMessage(fmt.Sprintf(`Nice to meet %s! 🎯 Now, in 2-3 sentences, describe %s's personality. For example: "Sarcastic but supportive, like a friend who won't let me get away with excuses but always has my back" or "Calm and methodical, like a zen master meets scientist."`, name, name))
	case StageStyle:
		m := botMessage(fmt.Sprintf("Perfect! Now let's define %s's communication style:", name), styleOptions...)
		m.SelectionType = SelectionSingle
		return m
	case StageCustomStyle:
		return botMessage(fmt.Sprintf("Great! Please describe the communication style you'd like %s to have:", name))
	case StageJobTitle:
		return botMessage(fmt.Sprintf(`Excellent! If %s had a human job title, what would it be? Examples: "Snarky Life Coach," "Executive Brain Assistant," "Creative Muse," "Chief Overthinking Prevention Officer"`, name))
	case StageTopTasks:
		return botMessage(fmt.Sprintf(`🎯 Now for the big question: What are the TOP 3 tasks you want %s to help with? Be specific! Examples: "Help me stick to my workout schedule by checking in daily and not accepting my lame excuses" or "Brainstorm creative marketing ideas when I'm stuck in a rut"`, name))
	case StageLifeAreas:
		m := botMessage(fmt.Sprintf("Fantastic! Which areas of life will %s assist with?", name), lifeAreaOptions...)
		m.SelectionType = SelectionMultiple
		m.ButtonText = "These are my focus areas"
		return m
	case StageProblemSolving:
		m := botMessage(fmt.Sprintf("Perfect! How would you like %s to approach problems?", name), problemSolvingOptions...)
		m.SelectionType = SelectionSingle
		return m
	case StageStress:
		m := botMessage(fmt.Sprintf("🗣️ How should %s respond when you're stressed or frustrated?", name), stressOptions...)
		m.SelectionType = SelectionSingle
		return m
	case StageDetail:
		m := botMessage(fmt.Sprintf("How much detail do you prefer in %s's responses?", name), detailOptions...)
		m.SelectionType = SelectionSingle
		return m
	case StageForbidden:
		return botMessage(fmt.Sprintf(`What topics should %s NEVER bring up? We all have our no-go zones. Examples: "Diet culture," "Politics," "My ex," "That time I embarrassed myself at the company party" (or type "None" if there aren't any)`, name))
	case StageQuirks:
		return botMessage(fmt.Sprintf(`✨ Fun part! What's one quirk or inside joke you'd like %s to have? Examples: "Always blames Mercury retrograde for problems," "Makes puns about cheese," "Refers to my cat as 'The Supreme Leader'" (or "None" if you prefer serious)`, name))
	case StageCatchphrase:
		return botMessage(fmt.Sprintf(`If %s had a catchphrase, what would it be? Examples: "Let's crush this!" or "According to my calculations..." or "Have you tried turning yourself off and on again?" (or "None" for no catchphrase)`, name))
	case StageAdditional:
		return botMessage(fmt.Sprintf(`Almost done! Anything else you want me to know about you or %s? This is your chance to tell me anything else that might help create your perfect AI companion! (or "Nothing else" if you're ready to proceed)`, name))
	case StageOwnerName:
		return botMessage(fmt.Sprintf("🎉 Amazing! %s is almost ready! Before we finish, I'd love to get your contact information so you can stay connected with your new AI agent. What's your full name?", name))
	case StageOwnerEmail:
		return botMessage(fmt.Sprintf("Great to meet you, %s! What's your email address? This will help you manage and access your AI agent.", or(p.OwnerName, "there")))
	case StageOwnerPhone:
		return botMessage("Perfect! And your phone number? (Optional, but helpful for important updates about your AI agent)")
	case StagePreview:
		m := botMessage(fmt.Sprintf("🚀 Fantastic! %s - your personalized AI %s - is now ready! They're designed to help with %s using their %s approach. Preview your new AI agent below!",
			name, or(p.JobTitle, "assistant"), or(strings.Join(p.LifeAreas, ", "), "your goals"), or(p.CommunicationStyle, "balanced")), previewOptions...)
		m.ShowPreview = true
		return m
	case StageDeployed:
		return botMessage(fmt.Sprintf("🚀 %s is now deployed and ready to assist! You can start chatting or embed them on your website. Thank you %s! What would you like to do next?", name, or(p.OwnerName, "for building with BotSmith")), deployedOptions...)
	default:
		return greeting()
	}
}

func agentName(p Profile) string {
	return or(p.Name, "your agent")
}

// collecting reports whether the stage stores one profile field per answer.
func collecting(s Stage) bool {
	return (s >= StageName && s <= StageOwnerPhone) || s == StageCustomStyle
}

// next is the stage entered after a successful answer.
func next(s Stage) Stage {
	if s == StageCustomStyle {
		return StageJobTitle
	}
	return s + 1
}

// write stores answer into the field owned by stage s. It reports false when
// the answer carries nothing to store.
func write(p *Profile, s Stage, answer string) bool {
	switch s {
	case StageName:
		p.Name = answer
	case StagePersonality:
		p.Personality = answer
	case StageStyle, StageCustomStyle:
		p.CommunicationStyle = answer
	case StageJobTitle:
		p.JobTitle = answer
	case StageTopTasks:
		p.TopTasks = answer
	case StageLifeAreas:
		tags := splitTags(answer)
		if len(tags) == 0 {
			return false
		}
		p.LifeAreas = tags
	case StageProblemSolving:
		p.ProblemSolvingStyle = answer
	case StageStress:
		p.StressResponse = answer
	case StageDetail:
		p.ResponseDetail = answer
	case StageForbidden:
		p.ForbiddenTopics = answer
	case StageQuirks:
		p.Quirks = answer
	case StageCatchphrase:
		p.Catchphrase = answer
	case StageAdditional:
		p.AdditionalInfo = answer
	case StageOwnerName:
		p.OwnerName = answer
	case StageOwnerEmail:
		p.OwnerEmail = answer
	case StageOwnerPhone:
		p.OwnerPhone = answer
	default:
		return false
	}
	return true
}

// splitTags flattens a submitted selection. Known options are matched whole
// first since several of them contain commas; the remainder is split on commas.
func splitTags(answer string) []string {
	type tag struct {
		at   int
		text string
	}
	var found []tag
	masked := answer
	for _, opt := range lifeAreaOptions {
		if i := strings.Index(masked, opt); i >= 0 {
			found = append(found, tag{at: i, text: opt})
			masked = masked[:i] + strings.Repeat(",", len(opt)) + masked[i+len(opt):]
		}
	}
	start := 0
	for i := 0; i <= len(masked); i++ {
		if i < len(masked) && masked[i] != ',' {
			continue
		}
		if t := strings.TrimSpace(masked[start:i]); t != "" {
			found = append(found, tag{at: start, text: t})
		}
		start = i + 1
	}
	sort.SliceStable(found, func(a, b int) bool { return found[a].at < found[b].at })

	tags := make([]string, 0, len(found))
	for _, t := range found {
		tags = append(tags, t.text)
	}
	return tags
}
