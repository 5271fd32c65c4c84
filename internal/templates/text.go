package templates

// TextTemplate is an LLM prompt for written content.
type TextTemplate struct {
	Name        string
	Description string
	Body        string
}

var textTemplates = []TextTemplate{
	{
		Name:        "twitter_announcement",
		Description: "Single announcement tweet highlighting one feature",
		Body: `You are a crypto content creator. Create an engaging Twitter post about {project_name}.

Project Information:
{project_info}

Requirements:
- Maximum 280 characters
- Include 2-3 relevant hashtags
- Engaging and professional tone
- Highlight the key feature: {key_feature}
- Include a call-to-action

Generate the tweet:`,
	},
	{
		Name:        "twitter_thread",
		Description: "Numbered 5-7 tweet thread explaining a topic",
		Body: `Create a Twitter thread (5-7 tweets) explaining {topic} for {project_name}.

Project Context:
{project_context}

Thread Structure:
1. Hook - Grab attention
2-3. Explanation - Break down the concept
4-5. Benefits - Why it matters
6. Call-to-action

Each tweet must be under 280 characters.
Number each tweet (1/7, 2/7, etc.)`,
	},
	{
		Name:        "project_summary",
		Description: "Pitch, short and long descriptions, features and audience",
		Body: `Create a comprehensive project summary for {project_name}.

Data Available:
{research_data}

Generate:
1. One-line pitch (10-15 words)
2. Short description (50 words)
3. Detailed description (200 words)
4. Key features (5 bullet points)
5. Target audience

Tone: Professional, clear, exciting but not hyperbolic`,
	},
	{
		Name:        "feature_explainer",
		Description: "Beginner and developer explanations of one feature",
		Body: `Explain the feature "{feature_name}" for {project_name} in simple terms.

Technical Details:
{technical_details}

Create:
1. Simple explanation (for beginners)
2. Technical explanation (for developers)
3. Real-world use case example
4. Benefits compared to competitors

Avoid jargon, use analogies where helpful.`,
	},
	{
		Name:        "blog_post",
		Description: "Long-form article about the project",
		Body: `Write a blog post of about 800 words titled "{title}" about {project_name}.

Research:
{research_data}

Structure the post with an introduction, three to five sections with headings, and a conclusion.
Cite concrete facts from the research only. Do not give financial advice.`,
	},
	{
		Name:        "video_script",
		Description: "Narrated script for a short promotional video",
		Body: `Write a {duration}-second narrated video script introducing {project_name}.

Project Context:
{project_context}

Format each scene as: [SCENE n - seconds] visual description / narration.
Open with a hook, explain the problem and the solution, and close with a call-to-action.`,
	},
}
