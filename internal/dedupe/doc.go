// Package dedupe tracks Idempotency-Key headers on create requests so a
// retried POST within the window does not create a second resource.
package dedupe
