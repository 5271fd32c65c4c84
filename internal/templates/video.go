package templates

// Scene is one timed segment of a video template.
type Scene struct {
	Type     string `json:"type"`
	Duration int    `json:"duration_seconds"`
	Goal     string `json:"goal"`
}

// VideoTemplate is a timed scene plan turned into a single video prompt.
type VideoTemplate struct {
	Name     string
	Duration int
	Subject  string
	Scenes   []Scene
}

var videoTemplates = []VideoTemplate{
	{
		Name:     "project_intro",
		Duration: 30,
		Subject:  "introducing {project_name}: {summary}",
		Scenes: []Scene{
			{Type: "hook", Duration: 5, Goal: "grab attention"},
			{Type: "problem", Duration: 8, Goal: "explain problem"},
			{Type: "solution", Duration: 12, Goal: "introduce project"},
			{Type: "cta", Duration: 5, Goal: "call to action"},
		},
	},
	{
		Name:     "feature_showcase",
		Duration: 45,
		Subject:  "showcasing {feature_name} of {project_name}",
		Scenes: []Scene{
			{Type: "intro", Duration: 5, Goal: "set the scene"},
			{Type: "feature_demo", Duration: 25, Goal: "demonstrate the feature"},
			{Type: "benefits", Duration: 10, Goal: "show why it matters"},
			{Type: "cta", Duration: 5, Goal: "call to action"},
		},
	},
	{
		Name:     "tutorial",
		Duration: 60,
		Subject:  "a tutorial on {topic} with {project_name}",
		Scenes: []Scene{
			{Type: "intro", Duration: 5, Goal: "state what viewers will learn"},
			{Type: "overview", Duration: 10, Goal: "outline the steps"},
			{Type: "step_by_step", Duration: 35, Goal: "walk through each step"},
			{Type: "recap", Duration: 10, Goal: "summarize and point to next steps"},
		},
	},
}
