package generator

import (
	"context"

	"autopost/post"
)

var canned = map[post.Platform]map[Tone]string{
	post.Twitter: {
		Professional: "Excited to announce our latest product update! Check out how we're improving user experience and delivering more value. #Innovation #ProductUpdate",
		Casual:       "Just shipped something awesome! 🚀 Can't wait for you all to try our cool new features! Link in bio. #NewRelease",
		Humorous:     "Our developers have been fueled by coffee and dreams to bring you this update. Enjoy the new features! #CoffeeCodeRepeat",
	},
	post.LinkedIn: {
		Professional: "We're pleased to announce our latest product enhancement that addresses key customer needs while improving overall workflow efficiency.",
		Casual:       "Just launched: Our team has been working hard on these new features, and we're excited to share them with our community!",
		Humorous:     "If our product were a superhero, it just got new powers! Check out our latest update that makes work less work-y.",
	},
	post.Facebook: {
		Professional: "We're excited to share our latest product update designed to enhance your experience and streamline your workflow.",
		Casual:       "New features just dropped! 🎉 We think you're going to love what we've been working on!",
		Humorous:     "We're pretty sure our latest update deserves a standing ovation... or at least a thumbs up! Check it out!",
	},
}

// CannedText returns the fixed offline copy for a platform and tone. Unknown
// values fall back to twitter and professional.
func CannedText(platform post.Platform, tone Tone) string {
	byTone, ok := canned[platform]
	if !ok {
		byTone = canned[post.Twitter]
	}
	text, ok := byTone[tone]
	if !ok {
		text = byTone[Professional]
	}
	return text
}

// MockLLM answers every prompt with the canned copy and never touches the
// network. It backs offline mode.
type MockLLM struct{}

func (MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	return CannedText(prompt.Platform, prompt.Tone), nil
}
