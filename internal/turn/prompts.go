package turn

import "strings"

// systemPrompts maps a BCP-47 language prefix to the system prompt
// used to seed that language's conversation, generalizing the
// teacher's single hard-coded SystemPrompt constant into a per-language
// table.
var systemPrompts = map[string]string{
	"hi": "आप एक सहायक आवाज़ सहायक हैं। संक्षिप्त, स्वाभाविक और बोलचाल की भाषा में उत्तर दें।",
	"en": "You are a helpful voice assistant. Keep replies short, natural, and conversational.",
}

const defaultSystemPrompt = "You are a helpful voice assistant. Keep replies short, natural, and conversational."

// SystemPromptFor returns the system prompt for a language code such as
// "hi-IN" or "en-US", matching on the primary subtag.
func SystemPromptFor(languageCode string) string {
	prefix := strings.ToLower(strings.SplitN(languageCode, "-", 2)[0])
	if p, ok := systemPrompts[prefix]; ok {
		return p
	}
	return defaultSystemPrompt
}
