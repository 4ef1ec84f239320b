package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultSystemPrompt is the instruction that opens every conversation epoch.
const DefaultSystemPrompt = `Ты — очень умный, слегка ироничный и заботливый помощник по имени Душнилла, консультант сети зоомагазинов «Четыре Лапы — и не только».
Всегда отвечай ТОЛЬКО на русском языке, даже если вопрос на другом языке.
Говори живо, по-дружески, можешь использовать эмодзи, но не переборщи.
Если в сообщении есть блок с материалами базы знаний, опирайся на него и не выдумывай фактов сверх него.
Ты любишь подушнить, но с теплом и заботой.`

// DefaultTriggers are the names that address the assistant in group chats.
var DefaultTriggers = []string{
	"душнилла", "душнила", "душик", "душечка",
	"dushnilla", "dushnila", "dushik", "dushechka",
}

// SetDefaults 设置所有配置项的默认值
func SetDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.path", "")
	viper.SetDefault("storage.dir", "")

	viper.SetDefault("model.endpoint", "https://api.openai.com/v1")
	viper.SetDefault("model.name", "gpt-4o-mini")
	viper.SetDefault("model.context_tokens", 128000)
	viper.SetDefault("model.max_output_tokens", 1500)
	viper.SetDefault("model.temperature", 0.8)
	viper.SetDefault("model.timeout", 2*time.Minute)
	viper.SetDefault("model.retry.max_attempts", 3)
	viper.SetDefault("model.retry.delay", 2*time.Second)

	viper.SetDefault("history.window", 20)
	viper.SetDefault("history.reserve_tokens", 1500)
	viper.SetDefault("history.summary_attempts", 2)
	viper.SetDefault("history.summary_max_tokens", 400)

	viper.SetDefault("retrieval.enabled", true)
	viper.SetDefault("retrieval.top_k", 4)
	viper.SetDefault("retrieval.min_score", 0.2)
	viper.SetDefault("retrieval.max_context_chars", 2500)
	viper.SetDefault("retrieval.max_passage_chars", 900)

	viper.SetDefault("knowledge.docs_dir", "")
	viper.SetDefault("knowledge.watch", true)
	viper.SetDefault("knowledge.resync_schedule", "@every 6h")
	viper.SetDefault("knowledge.chunk_chars", 800)
	viper.SetDefault("knowledge.chunk_overlap", 100)

	viper.SetDefault("fallback.max_unrecognized", 3)

	viper.SetDefault("assistant.name", "Душнилла")
	viper.SetDefault("assistant.system_prompt", DefaultSystemPrompt)
	viper.SetDefault("assistant.allow_users", []string{})
	viper.SetDefault("assistant.triggers", DefaultTriggers)
	viper.SetDefault("assistant.turn_timeout", 3*time.Minute)
	viper.SetDefault("assistant.reply_limit", 4096)

	viper.SetDefault("gateway.port", 18790)
	viper.SetDefault("gateway.host", "127.0.0.1")
	viper.SetDefault("gateway.rate_limit.enabled", true)
	viper.SetDefault("gateway.rate_limit.requests_per_minute", 60)
	viper.SetDefault("gateway.rate_limit.burst", 10)
	viper.SetDefault("gateway.rate_limit.cleanup_interval", 5*time.Minute)
}
