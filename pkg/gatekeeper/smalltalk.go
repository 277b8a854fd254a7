package gatekeeper

import (
	"regexp"
	"strings"
)

var smallTalk = regexp.MustCompile(`^(?:` + strings.Join([]string{
	`h(?:i+|ello+|ey+|iya)`,
	`yo`,
	`good (?:morning|afternoon|evening|night)`,
	`(?:thanks?|thank you|thx|ty)(?: (?:so|very) much| a lot)?`,
	`(?:ok(?:ay)?|k|cool|great|nice|awesome|perfect|sounds good|got it|sure|yep|yes|no|nope)`,
	`(?:bye|goodbye|see (?:you|ya)(?: later)?|cya)`,
	`how are you(?: doing)?(?: today)?`,
	`(?:konnichiwa|ohayou?|arigatou?(?: gozaimasu)?|sayonara|oyasumi)`,
}, "|") + `)(?: (?:there|sensei|again|everyone))?$`)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N} ]+`)

// IsSmallTalk reports whether a user message is a greeting, politeness, or
// acknowledgement with no memorable content.
func IsSmallTalk(text string) bool {
	cleaned := nonWord.ReplaceAllString(strings.ToLower(text), " ")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return true
	}
	return smallTalk.MatchString(cleaned)
}
