// Package assistant runs one conversation turn end to end: access checks,
// commands, the session lifecycle, retrieval, the fallback confirmation and
// the model call.
package assistant

import "errors"

// Assistant errors.
var (
	// ErrNoSearcher indicates /search was used without a searcher.
	ErrNoSearcher = errors.New("assistant: no searcher configured")
)

// User-facing texts.
const (
	storageApology  = "😔 Не получилось сохранить историю разговора. Попробуй ещё раз чуть позже."
	modelApology    = "Ой, модель сейчас подтормаживает... Попробуй ещё раз через минуту 😏"
	timeoutApology  = "⌛ Слишком долго думаю над ответом. Попробуй ещё раз!"
	overTokenNotice = "Разговор слишком длинный (%d токенов), начинаю новый! 😅"
	tokensLeftNote  = "__(%d токенов осталось)__"
	clearedText     = "🧹 История очищена, начинаем заново!"
	greetingText    = "Привет! Я %s, чем помочь?"
	emptySearchText = "❌ Пожалуйста, укажи запрос для поиска."
	noSourcesText   = "У меня пока нет источников для этого разговора. Сначала задай вопрос 🙂"
	badSourceText   = "Нет источника с номером %d. Доступно: %d."
	missingFileText = "Не нашёл файл «%s» в базе документов."
	attachmentText  = "📎 %s"
	helpText        = `Я %s, консультант «Четыре Лапы — и не только».
/clear — начать разговор заново
/search <запрос> — поискать в интернете
/source [номер] — прислать документ, на который я опирался
/help — эта подсказка`
)
