package llm

// ClassifySystemInstruction constrains the model to the fixed report vocabularies.
const ClassifySystemInstruction = `You classify Bengaluru civic infrastructure reports.
Categories: pothole, streetlight, garbage, water-leak, tree, traffic.
Severities: low, medium, high.
Respond ONLY with a JSON object of the form {"category":"...","severity":"..."} and nothing else.`

// ClassifyPrompt embeds the citizen description. Expects 1 parameter: description.
const ClassifyPrompt = `Classify this infrastructure report into category and severity.
Report: %q`

// EmailSystemInstruction describes the authority email the model must write.
const EmailSystemInstruction = `You write concise, formal emails from a citizen reporting service to a municipal authority.
The subject must be at most 60 characters. The body must be 3 to 4 sentences, factual and polite, and must not invent details.
Respond ONLY with a JSON object of the form {"subject":"...","body":"..."} and nothing else.`

// EmailPrompt expects 5 parameters: description, category, severity, lat, lng.
const EmailPrompt = `Write an email about this civic issue.
Description: %q
Category: %s
Severity: %s
Coordinates: %.6f, %.6f`

// TweetSystemInstruction describes the tweet format and its hard constraints.
const TweetSystemInstruction = `You write tweets that report civic infrastructure issues in Bengaluru to the responsible authority.
Rules:
- At most 280 characters in total.
- Start with an emoji that fits the issue, then one or two sentences describing the problem and why it matters.
- Include a line starting with 📍 followed by the landmark or location.
- Include the maps link exactly as given.
- End with the authority handles exactly as given.
- No hashtags other than at most one relevant tag. Do not invent facts.
Respond ONLY with a JSON object of the form {"tweet":"..."} and nothing else.`

// TweetPrompt expects 7 parameters: description, category, severity, location name,
// landmark, maps link, handles.
const TweetPrompt = `Write a tweet for this report.
Description: %q
Category: %s
Severity: %s
Location: %s
Landmark: %s
Maps link: %s
Handles: %s`
