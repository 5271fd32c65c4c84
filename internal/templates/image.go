package templates

// ImageTemplate is a visual prompt with a fixed aspect ratio.
type ImageTemplate struct {
	Name        string
	AspectRatio string
	Structure   string
	Prompt      string
	// Preset names the brand preset whose keywords are appended.
	Preset string
}

var imageTemplates = []ImageTemplate{
	{
		Name:        "twitter_announcement",
		AspectRatio: "16:9",
		Structure:   "mascot holding a sign with the announcement text",
		Prompt:      `{mascot} holding a sign that says "{text}", {brand_style}, professional social media post`,
		Preset:      "announcement",
	},
	{
		Name:        "feature_highlight",
		AspectRatio: "1:1",
		Structure:   "mascot presenting one feature",
		Prompt:      `{mascot} showcasing {feature_name}, {feature_visual}, {brand_style}, informative and clean`,
		Preset:      "social_media",
	},
	{
		Name:        "infographic",
		AspectRatio: "4:5",
		Structure:   "vertical infographic guided by the mascot",
		Prompt:      `infographic about {topic}, {mascot} as guide, {data_points}, {brand_style}, modern and clear`,
		Preset:      "infographic",
	},
	{
		Name:        "comparison",
		AspectRatio: "16:9",
		Structure:   "side by side comparison chart",
		Prompt:      `comparison chart showing {project_name} vs {competitor}, {mascot} pointing out advantages, {brand_style}`,
		Preset:      "infographic",
	},
	{
		Name:        "announcement",
		AspectRatio: "16:9",
		Structure:   "celebratory announcement banner",
		Prompt:      `{mascot} excited about {announcement}, dramatic and eye-catching, {brand_style}, celebration`,
		Preset:      "announcement",
	},
}
