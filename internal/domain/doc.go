// Package domain defines the core business types for the publishing pipeline.
//
// Types in this package are pure value objects with no behavior beyond small
// predicates, no database dependencies, and no HTTP concerns. They are the
// shared language between the queue manager, the platform dispatchers, the
// metrics normalizer, and the feedback emitter.
package domain
