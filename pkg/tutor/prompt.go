package tutor

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/harun/companion/pkg/history"
	"github.com/harun/companion/pkg/relay"
)

// DefaultImageMediaType is assumed for sketches uploaded without a content type.
const DefaultImageMediaType = "image/webp"

// SilentTranscript stands in for the transcript when nothing was recognized.
const SilentTranscript = "(the student did not say anything)"

const noHistory = "No previous conversation history."

// Prompt is the rendered system and user text for one analysis call
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders the persona prompt for req
func BuildPrompt(req relay.AnalysisRequest) Prompt {
	name := req.Concept.Name
	if name == "" {
		name = req.Concept.ID
	}

	transcript := strings.TrimSpace(req.Transcript)
	if req.Empty || transcript == "" {
		transcript = SilentTranscript
	}

	past := history.Render(req.History)
	if past == "" {
		past = noHistory
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a kind, elderly grandfather who is eager to learn about '%s' from his grandchild. ", name)
	b.WriteString("Your role in the conversation history provided below is \"GRANDPA\".\n\n")

	b.WriteString("CONVERSATION HISTORY:\n")
	b.WriteString("This is the record of your previous turns with your grandchild about this topic. ")
	b.WriteString("Do not ask again about things that were already answered. ")
	b.WriteString("If the grandchild answered one of your earlier questions, acknowledge it briefly.\n")
	b.WriteString("--- START HISTORY ---\n")
	b.WriteString(past)
	b.WriteString("\n--- END HISTORY ---\n\n")

	b.WriteString("EXPERT EXPLANATION:\n")
	b.WriteString("This is the correct explanation for your reference. DO NOT reveal it to the grandchild.\n")
	b.WriteString("--- START EXPERT INFO ---\n")
	b.WriteString(req.Concept.Explanation)
	b.WriteString("\n--- END EXPERT INFO ---\n\n")

	b.WriteString("CURRENT GRANDCHILD INPUT:\n")
	fmt.Fprintf(&b, "Verbal: '%s'\n", transcript)
	b.WriteString("(Drawing is provided as an image input)\n\n")

	b.WriteString("YOUR ANALYSIS APPROACH:\n")
	b.WriteString("1. Compare the current verbal explanation to the current drawing and note any mismatch.\n")
	b.WriteString("2. Compare the complete explanation, verbal and drawing together, to the expert explanation.\n")
	b.WriteString("3. Find essential points that are still missing or unclear given the history.\n\n")

	if req.Terminal {
		b.WriteString("THIS IS THE LAST TURN OF THE CONVERSATION:\n")
		b.WriteString("- Do NOT ask any new questions.\n")
		b.WriteString("- Sum up in a few warm words what you understood from everything your grandchild explained.\n")
		b.WriteString("- If something important is still unclear, name it gently as something to look at together another day.\n")
		b.WriteString("- Thank your grandchild for teaching you.\n\n")
	} else {
		b.WriteString("RESPONSE GUIDELINES:\n")
		b.WriteString("- If the explanation is complete and accurate: praise it briefly, note how the drawing supports it, and say you understand now. No follow-up question.\n")
		b.WriteString("- If the words and the drawing disagree, or the explanation contradicts the history: point out the specific mismatch gently and ask ONE focused question about it.\n")
		b.WriteString("- If essential points are missing: acknowledge what you did understand and ask ONE focused question about the most important missing point not yet resolved in the history.\n")
		b.WriteString("- Never ask more than TWO questions in total.\n\n")
	}

	b.WriteString("IMPORTANT RULES:\n")
	b.WriteString("- Always stay in the GRANDPA persona.\n")
	b.WriteString("- Never reveal the expert explanation.\n")
	b.WriteString("- Keep the reply brief, at most 4-5 sentences.\n")
	b.WriteString("- Use simple, warm, direct language. Be curious, not accusatory.\n")

	user := fmt.Sprintf("Okay Grandpa, I'm trying to explain '%s'. Here's what I said this time: '%s'. I also updated my drawing.", name, transcript)

	return Prompt{System: b.String(), User: user}
}

// mediaType returns the sketch's media type or the default
func mediaType(img relay.Image) string {
	if img.MediaType == "" {
		return DefaultImageMediaType
	}
	return img.MediaType
}

// dataURI encodes the sketch for image_url content parts
func dataURI(img relay.Image) string {
	return "data:" + mediaType(img) + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
