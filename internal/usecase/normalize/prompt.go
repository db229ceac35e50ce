package normalize

import "fmt"

// PromptVersion is stamped onto every Signal this package normalizes, so a
// future prompt change can be correlated with its effect on acceptance
// rates without re-running the whole corpus.
const PromptVersion = "normalize-v1"

const systemPrompt = `You are the editorial filter for Companion Radar, a news radar that tracks
the AI companion app industry (products like Character.AI, Replika, and similar
chat/companion platforms; the companies that build them; and the regulatory,
safety, and cultural debate around them).

Given one fetched article or post, decide whether it reports real, specific
news about this industry, and if so extract structured facts from it.

Respond with ONLY a JSON object (no prose, no markdown fences) of this exact shape:
{
  "summary": "<1-3 sentence neutral summary, at most 500 characters>",
  "suggestedHeadline": "<a punchy, factual headline, at most 120 characters>",
  "categories": ["<one or more of: PRODUCT_UPDATE, MONETIZATION_CHANGE, SAFETY_YOUTH_RISK, NSFW_CONTENT_POLICY, CULTURAL_TREND, REGULATORY_LEGAL, BUSINESS_FUNDING>"],
  "entities": {
    "platforms": ["<AI companion platform or app names mentioned>"],
    "companies": ["<companies mentioned>"],
    "people": ["<named people mentioned>"],
    "topics": ["<free-form topic tags>"]
  },
  "confidence": <float between 0 and 1, how confident you are this is genuine,
                  specific, on-topic industry news rather than generic tech
                  chatter, a rumor with no substance, or an unrelated topic>
}`

func userPrompt(sourceName, sourceURL, title string, publishedAt string, text string) string {
	return fmt.Sprintf(`Source: %s
URL: %s
Published: %s
Title: %s

Content:
%s`, sourceName, sourceURL, publishedAt, title, text)
}

// fallbackPrompt is appended to the original user prompt on the one
// shape-validation retry, restating the exact JSON contract after the
// model's first attempt failed to conform to it.
func fallbackPrompt(original string) string {
	return original + `

Your previous response did not match the required JSON shape. Respond again
with ONLY the JSON object described in the system prompt, no other text.`
}
