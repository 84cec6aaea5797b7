package platform

import "unicode/utf8"

// URLAllowance is reserved in every post for the destination link.
const URLAllowance = 30

type Config struct {
	MaxLength    int
	MaxTokens    int
	Style        string
	HashtagStyle string
}

var configs = map[Platform]Config{
	LinkedIn: {
		MaxLength: 3000,
		MaxTokens: 700,
		Style:     "Professional and informative, focusing on value and insights",
	},
	Twitter: {
		MaxLength:    280,
		MaxTokens:    100,
		Style:        "Concise and engaging, with relevant hashtags",
		HashtagStyle: "trending",
	},
	Facebook: {
		MaxLength: 63206,
		MaxTokens: 800,
		Style:     "Conversational and engaging, encouraging discussion",
	},
}

// ConfigFor returns the generation limits for p. Platforms without a config
// cannot have copy generated for them.
func ConfigFor(p Platform) (Config, bool) {
	cfg, ok := configs[p]
	return cfg, ok
}

// EffectiveLength counts characters plus the link allowance.
func EffectiveLength(text string) int {
	return utf8.RuneCountInString(text) + URLAllowance
}

// Fits reports whether text plus the link allowance stays within the limit.
func (c Config) Fits(text string) bool {
	return EffectiveLength(text) <= c.MaxLength
}
