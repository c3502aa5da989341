// Package insights asks an LLM for commentary on the current metrics.
//
// OpenRouter posts the observations to an OpenAI-compatible chat completions
// endpoint and expects a JSON object with "stock_picks" and
// "tasi_opportunities" (HTML fragments). Models often wrap the object in
// prose, so the first {...} span of the reply is extracted before decoding.
//
// Failures are categorised with sentinel errors (ErrMissingKey,
// ErrUnauthorized, ErrRateLimited, ErrParse). Resolve turns any failure into
// the user-facing placeholder text stored in the snapshot; insight failures
// never abort a cycle.
package insights
