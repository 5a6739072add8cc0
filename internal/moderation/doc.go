// Package moderation provides the rule-based content moderation engine for
// forum threads and replies. It normalizes submitted text, scores it for
// profanity and spam, aggregates a risk verdict and picks an approve, review
// or reject action that also depends on the author's reputation.
//
// Everything in this package is deterministic and free of I/O. A Config is
// built once and never mutated, so an Engine can be shared by any number of
// goroutines without locking.
package moderation
