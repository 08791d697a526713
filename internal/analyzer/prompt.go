package analyzer

import (
	"fmt"
	"strings"

	"github.com/ibeckermayer/ytfilter/internal/types"
)

// BuildPrompt constructs the scoring prompt for a single item. saturated
// lists topics the user has already watched enough of.
func BuildPrompt(item types.Item, saturated []string) string {
	var sb strings.Builder

	sb.WriteString("Score this YouTube video 0-100 for quality.\n\n")

	sb.WriteString("SCORING:\n")
	sb.WriteString("- 80-100: Educational, technical, informative\n")
	sb.WriteString("- 60-79: Decent, interesting\n")
	sb.WriteString("- 40-59: Mediocre, clickbait\n")
	sb.WriteString("- 20-39: Low quality, fear-mongering, speculation\n")
	sb.WriteString("- 0-19: Pure clickbait, panic, rage-bait\n\n")

	sb.WriteString("FILTER OUT: Fear headlines, speculation, AI slop, clickbait (ALL CAPS, !!!)\n")
	sb.WriteString("KEEP: Technical content, tutorials, thoughtful analysis\n\n")

	if len(saturated) > 0 {
		sb.WriteString(fmt.Sprintf("SATURATED TOPICS (score lower): %s\n", strings.Join(saturated, ", ")))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("VIDEO: [%s] %s\n\n", item.Channel, item.Title))

	sb.WriteString(`Respond ONLY with JSON: {"score": 75, "reason": "brief reason"}`)

	return sb.String()
}
