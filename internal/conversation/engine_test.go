package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state struct {
	template string
	profile  Profile
	stage    Stage
}

func (s *state) send(t *testing.T, input string) Result {
	t.Helper()
	res := Advance(input, s.template, s.profile, s.stage, DefaultCatalog)
	require.NotEmpty(t, res.Messages, "turn %q produced no messages", input)
	if res.NewTemplate != nil {
		s.template = *res.NewTemplate
	}
	if res.NewProfile != nil {
		s.profile = *res.NewProfile
	}
	if res.NewStage != nil {
		s.stage = *res.NewStage
	}
	return res
}

func TestTemplateSelectionStartsWizard(t *testing.T) {
	s := &state{}
	res := s.send(t, "Business Coach")

	assert.Equal(t, StageName, s.stage)
	assert.Equal(t, "Business Coach", s.template)
	assert.Equal(t, "Business Coach", s.profile.Profession)
	assert.Contains(t, res.Messages[0].Content, "AI agent for Business Coach")
}

func TestStageZeroUnknownInputShowsGreeting(t *testing.T) {
	s := &state{}
	res := s.send(t, "hello?")

	assert.Equal(t, StageTemplate, s.stage)
	assert.Nil(t, res.NewStage)
	assert.Equal(t, GreetingText, res.Messages[0].Content)
	assert.Equal(t, greetingOptions, res.Messages[0].Options)

	res = s.send(t, ActionCreateNew)
	assert.Equal(t, DefaultCatalog.Names(), res.Messages[0].Options)
	assert.Equal(t, SelectionSingle, res.Messages[0].SelectionType)
}

func TestFullWalkthroughBuildsProfile(t *testing.T) {
	s := &state{}
	s.send(t, "Personal Assistant")
	s.send(t, "Ava")
	s.send(t, "Calm and methodical")
	s.send(t, styleOptions[0])
	s.send(t, "Executive Brain Assistant")
	s.send(t, "Inbox zero, calendar, reminders")
	s.send(t, lifeAreaOptions[0]+", "+lifeAreaOptions[4]+", Gardening")
	s.send(t, problemSolvingOptions[1])
	s.send(t, stressOptions[0])
	s.send(t, detailOptions[1])
	s.send(t, "Politics")
	s.send(t, "None")
	s.send(t, "Let's crush this!")
	s.send(t, "Nothing else")
	s.send(t, "Dana Scully")
	s.send(t, "dana@example.com")
	res := s.send(t, "555-0100")

	require.Equal(t, StagePreview, s.stage)
	assert.True(t, res.ShowPreview)
	assert.Equal(t, previewOptions, res.Messages[0].Options)

	p := s.profile
	assert.Equal(t, "Ava", p.Name)
	assert.Equal(t, "Executive Brain Assistant", p.JobTitle)
	assert.Equal(t, []string{lifeAreaOptions[0], lifeAreaOptions[4], "Gardening"}, p.LifeAreas)
	assert.Equal(t, "555-0100", p.OwnerPhone)

	sum := BuildSummary(p)
	assert.Nil(t, sum.Quirks)
	require.NotNil(t, sum.Catchphrase)
	assert.Equal(t, "Let's crush this!", *sum.Catchphrase)

	prompt := PersonalityPrompt(p)
	assert.True(t, strings.HasPrefix(prompt, "You are Ava, a Executive Brain Assistant."))
	assert.Contains(t, prompt, `Your catchphrase: "Let's crush this!".`)
	assert.NotContains(t, prompt, "Your quirk")
	assert.Contains(t, prompt, "Never discuss: Politics.")
}

func TestEmptyAnswerRepromptsSameStage(t *testing.T) {
	stages := []Stage{StageCustomStyle}
	for st := StageName; st <= StageOwnerPhone; st++ {
		stages = append(stages, st)
	}
	for _, stage := range stages {
		s := &state{stage: stage, profile: Profile{Name: "Ava"}}
		res := s.send(t, "   ")

		assert.Equal(t, stage, s.stage, "stage %d", stage)
		assert.Nil(t, res.NewProfile)
		require.Len(t, res.Messages, 2)
		assert.Equal(t, RepromptApology, res.Messages[0].Content)
		assert.Equal(t, Question(stage, s.profile, DefaultCatalog), res.Messages[1])
	}
}

func TestLifeAreasRejectsEmptySelection(t *testing.T) {
	s := &state{stage: StageLifeAreas}
	res := s.send(t, " , ,")

	assert.Equal(t, StageLifeAreas, s.stage)
	assert.Equal(t, RepromptApology, res.Messages[0].Content)
}

func TestCustomStyleDetour(t *testing.T) {
	s := &state{stage: StageStyle, profile: Profile{Name: "Ava"}}
	s.send(t, CustomStyleOption)
	assert.Equal(t, StageCustomStyle, s.stage)
	assert.Empty(t, s.profile.CommunicationStyle)

	res := s.send(t, "Like a pirate")
	assert.Equal(t, StageJobTitle, s.stage)
	assert.Equal(t, "Like a pirate", s.profile.CommunicationStyle)
	assert.Contains(t, res.Messages[0].Content, "human job title")
}

func TestFreeTextAcceptedOnOptionStage(t *testing.T) {
	s := &state{stage: StageDetail}
	s.send(t, "whatever works")
	assert.Equal(t, StageForbidden, s.stage)
	assert.Equal(t, "whatever works", s.profile.ResponseDetail)
}

func TestPreviewActions(t *testing.T) {
	base := Profile{Name: "Ava", Profession: "Home Manager", OwnerName: "Dana"}

	s := &state{template: "Home Manager", profile: base, stage: StagePreview}
	res := s.send(t, ActionDeploy)
	assert.Equal(t, StageDeployed, s.stage)
	assert.Contains(t, res.Messages[0].Content, "Thank you Dana")

	s = &state{template: "Home Manager", profile: base, stage: StagePreview}
	res = s.send(t, ActionAdjust)
	assert.Equal(t, StageName, s.stage)
	assert.Equal(t, base, s.profile)
	require.Len(t, res.Messages, 2)

	s = &state{template: "Home Manager", profile: base, stage: StagePreview}
	s.send(t, ActionCreateAnother)
	assert.Equal(t, StageTemplate, s.stage)
	assert.Empty(t, s.template)
	assert.Equal(t, Profile{}, s.profile)

	s = &state{profile: base, stage: StagePreview}
	res = s.send(t, ActionPreview)
	assert.True(t, res.ShowPreview)
	assert.Equal(t, StagePreview, s.stage)

	s = &state{profile: base, stage: StagePreview}
	res = s.send(t, "what now")
	assert.Equal(t, StagePreview, s.stage)
	assert.True(t, res.ShowPreview)
	assert.Equal(t, RepromptApology, res.Messages[0].Content)
}

func TestDeployedNavigation(t *testing.T) {
	p := Profile{Name: "Ava"}
	for _, action := range []string{ActionChat, ActionEmbed, ActionDashboard} {
		s := &state{profile: p, stage: StageDeployed}
		res := s.send(t, action)
		assert.Equal(t, StageDeployed, s.stage)
		assert.Contains(t, res.Messages[0].Content, "Ava")
	}

	s := &state{profile: p, stage: StageDeployed}
	res := s.send(t, "thanks")
	assert.Equal(t, Question(StageDeployed, p, DefaultCatalog), res.Messages[0])

	s.send(t, ActionCreateAnother)
	assert.Equal(t, StageTemplate, s.stage)
}

func TestAdvanceDoesNotMutateInput(t *testing.T) {
	p := Profile{Name: "Ava", LifeAreas: []string{"a"}}
	Advance(lifeAreaOptions[1], "", p, StageLifeAreas, DefaultCatalog)
	assert.Equal(t, []string{"a"}, p.LifeAreas)
}

func TestSplitTagsKeepsOptionsWithCommas(t *testing.T) {
	got := splitTags("Gardening, " + lifeAreaOptions[1] + ",Chess")
	assert.Equal(t, []string{"Gardening", lifeAreaOptions[1], "Chess"}, got)
}
