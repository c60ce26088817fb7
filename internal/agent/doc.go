// Package agent defines the boundary to the external LLM/tool engine.
//
// A Turn is one role-tagged unit of conversation content made of typed
// blocks (text, tool_use, tool_result, image). The Agent interface hides
// the multi-step sampling loop behind a single Run call: callers hand in
// the full ordered history and get back the updated history plus a stream
// of intermediate events through Callbacks.
//
// AnthropicAgent is the production implementation on the official
// Anthropic SDK. Tests substitute fakes.
package agent
