package oracle

import (
	"fmt"
	"strings"

	"github.com/MrWong99/fortuna/pkg/provider/llm"
)

const fortuneInstructions = `You are an old pirate fortune teller on the Grand Line, reading destinies in the hot-blooded style of One Piece.
1. Keep the One Piece adventure tone in every field.
2. todo (favourable) and notodo (unfavourable) must be mutually exclusive: nothing in todo may appear in notodo.
3. Give exactly 3 todo and 3 notodo items, each 2 to 5 words.
4. score must be a plain integer between 1 and 100. Never output fractions or percentages.
5. insight is the detailed reading, about 300 words, told like a veteran pirate warning a rookie in a tavern.
6. imagePrompt is a short English description of a wanted poster that captures the reading.`

const compatibilityInstructions = `Style: the bond between One Piece crewmates.
score is an integer between 1 and 100.
Give exactly 3 todo and 3 notodo items, each 2 to 5 words, mutually exclusive.
imagePrompt is a short English description of a wanted poster showing both crewmates.`

const (
	speechPrefix   = "Read the following in the voice of a bold and wise veteran pirate, like Rayleigh from One Piece: "
	posterPrefix   = "One Piece anime wanted poster style, high quality illustration, hand-drawn look, vibrant colors, bounty poster aesthetic, representing: "
	posterSuffix   = ". Epic lighting."
	fortunePoster  = "Grand Line Adventure"
	alliancePoster = "Pirate Alliance"
)

// LiveInstructions is the default persona of the live voice session.
const LiveInstructions = "You are a reclusive master of fate reading who lives in the mountains. " +
	"You speak with deep wisdom and kindness. You are in a real-time voice conversation " +
	"with a seeker; answer their questions directly."

var fortuneSchema = &llm.Schema{
	Type: llm.TypeObject,
	Properties: map[string]*llm.Schema{
		"bazi":           llm.String("the four pillars of destiny for the birth moment"),
		"summary":        llm.String("one-line summary of the day"),
		"score":          llm.Integer("fortune score from 1 to 100"),
		"todo":           llm.StringArray("favourable actions"),
		"notodo":         llm.StringArray("unfavourable actions"),
		"insight":        llm.String("detailed reading"),
		"imagePrompt":    llm.String("wanted poster description"),
		"luckyColor":     llm.String("lucky colour"),
		"luckyDirection": llm.String("lucky compass direction"),
		"fiveElements":   llm.String("balance of the five elements"),
	},
	Required: []string{"bazi", "summary", "score", "todo", "notodo", "insight", "imagePrompt"},
}

var compatibilitySchema = &llm.Schema{
	Type: llm.TypeObject,
	Properties: map[string]*llm.Schema{
		"score":            llm.Integer("bond score from 1 to 100"),
		"matchAnalysis":    llm.String("analysis of the match"),
		"dynamic":          llm.String("how the two behave together"),
		"todo":             llm.StringArray("favourable shared actions"),
		"notodo":           llm.StringArray("unfavourable shared actions"),
		"imagePrompt":      llm.String("wanted poster description"),
		"baziA":            llm.String("four pillars of the first person"),
		"baziB":            llm.String("four pillars of the second person"),
		"fiveElementMatch": llm.String("five elements interplay"),
		"advice":           llm.String("advice for the pair"),
	},
	Required: []string{"score", "matchAnalysis", "dynamic", "todo", "notodo", "imagePrompt"},
}

func describe(u UserInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "'%s', born %s", u.Name, u.BirthDate)
	if u.BirthTime != "" {
		fmt.Fprintf(&b, " at %s", u.BirthTime)
	}
	fmt.Fprintf(&b, " in %s", u.BirthPlace)
	if u.Gender != "" {
		fmt.Fprintf(&b, ", gender %s", u.Gender)
	}
	return b.String()
}

func fortunePrompt(u UserInfo, date string) string {
	return fmt.Sprintf("Read the voyage fortune of the pirate %s for %s.", describe(u), date)
}

func compatibilityPrompt(a, b UserInfo) string {
	return fmt.Sprintf("Read the soul bond between the pirate crewmates %s and %s.", describe(a), describe(b))
}

func posterPrompt(subject, fallback string) string {
	if strings.TrimSpace(subject) == "" {
		subject = fallback
	}
	return posterPrefix + subject + posterSuffix
}
