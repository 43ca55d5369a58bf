// Package tutor produces the grandpa persona's feedback and voice.
//
// Analyzers turn a transcript, a sketch, the expert explanation of a concept
// and the prior conversation into a short reply. Two backends are provided:
// OpenAI chat completions and Anthropic messages. Both share one prompt so
// the persona does not drift between providers.
//
// The synthesizer turns that reply into speech with the OpenAI speech API.
package tutor
