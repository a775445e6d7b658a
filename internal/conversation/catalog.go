package conversation

type Template struct {
	Name           string   `json:"name"`
	SuggestedTasks []string `json:"suggestedTasks"`
}

// Catalog is the ordered list of persona templates offered at stage 0.
type Catalog []Template

func (c Catalog) Lookup(name string) (Template, bool) {
	for _, t := range c {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}

func (c Catalog) Names() []string {
	out := make([]string, 0, len(c))
	for _, t := range c {
		out = append(out, t.Name)
	}
	return out
}

var DefaultCatalog = Catalog{
	{Name: "Business Coach", SuggestedTasks: []string{"Strategy planning", "Goal setting", "Performance tracking"}},
	{Name: "Personal Assistant", SuggestedTasks: []string{"Schedule management", "Email handling", "Task organization"}},
	{Name: "Creative Partner", SuggestedTasks: []string{"Brainstorming", "Content creation", "Design feedback"}},
	{Name: "Health & Wellness Guide", SuggestedTasks: []string{"Workout planning", "Nutrition advice", "Wellness tracking"}},
	{Name: "Learning Companion", SuggestedTasks: []string{"Study planning", "Skill development", "Progress tracking"}},
	{Name: "Financial Advisor", SuggestedTasks: []string{"Budget planning", "Investment advice", "Expense tracking"}},
	{Name: "Home Manager", SuggestedTasks: []string{"Cleaning schedules", "Maintenance reminders", "Organization"}},
	{Name: "Entertainment Curator", SuggestedTasks: []string{"Content recommendations", "Event planning", "Activity suggestions"}},
	{Name: "Custom Agent", SuggestedTasks: []string{"Custom task 1", "Custom task 2", "Custom task 3"}},
}
