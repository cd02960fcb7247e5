// Package prompts is the prompt write path and the source of push-stream events.
//
// Service wraps a store.PromptStore with validation and tenant scoping taken
// from the caller's auth.Principal. After a mutation succeeds it publishes
// prompt.created, prompt.updated or prompt.deleted to the tenant through a
// Notifier (the realtime.Registry in production). Publication runs on its own
// goroutine, is best-effort, and is not ordered relative to later writes.
package prompts
