package config

// mergeLLMProviders merges built-in and user-defined LLM provider
// configurations. User-defined providers override built-in providers with
// the same name.
func mergeLLMProviders(builtin map[string]LLMProviderConfig, user map[string]LLMProviderConfig) map[string]*LLMProviderConfig {
	result := make(map[string]*LLMProviderConfig, len(builtin)+len(user))

	for name, provider := range builtin {
		providerCopy := provider
		result[name] = &providerCopy
	}

	for name, provider := range user {
		providerCopy := provider
		result[name] = &providerCopy
	}

	return result
}
