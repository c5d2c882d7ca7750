// Package llm contains the provider-neutral completion interface used by the
// intent parser, plus the fallback wrapper. Provider adapters live in the
// openai, anthropic and mock subpackages.
package llm
