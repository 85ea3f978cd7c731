package constant

const (
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"
	ChatMessageRoleSystem    = "system"
)

// Metadata keys stored on chat messages.
const (
	MetaSources          = "sources"
	MetaPromptTokens     = "prompt_tokens"
	MetaCompletionTokens = "completion_tokens"
	MetaCachedTokens     = "cached_tokens"
	MetaCostUSD          = "cost_usd"
	MetaCached           = "cached"
	MetaInterrupted      = "interrupted"
)

const SessionTitleMaxChars = 80
