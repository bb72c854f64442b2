package speech

import "strings"

// Common Spanish words used to spot the user's language. One hit is enough:
// the bot's audience is overwhelmingly Spanish-speaking and the English TTS
// voice is only a courtesy fallback.
var spanishWords = []string{
	"hola", "qué", "cómo", "gracias", "por favor", "necesito",
	"quiero", "buenos", "buenas", "está", "dónde", "cuándo",
	"cuánto", "puede", "tienen", "hacer", "ayuda", "información",
	"servicio", "precio", "cuenta", "bien", "mucho", "para",
}

// DetectLanguage returns "es" when the text looks Spanish, "en" otherwise.
func DetectLanguage(text string) string {
	lower := strings.ToLower(text)
	for _, word := range spanishWords {
		if strings.Contains(lower, word) {
			return "es"
		}
	}
	return "en"
}
