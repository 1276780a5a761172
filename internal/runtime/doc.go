// Package runtime reproduces actor-style contract execution in process:
// contracts never call each other synchronously for effects, they return
// sub-messages that the dispatcher runs after the emitting invocation
// finishes, delivering correlated replies once each sub-message and all
// of its nested effects complete.
//
// Each top-level invocation runs against a layered write-cache over the
// chain store; the cache commits only when the whole invocation
// succeeds. Sub-messages get their own nested layer so a failed
// sub-message can report an error reply to its parent without poisoning
// the parent's writes.
//
// The runtime is single-threaded by design. Concurrency in the system
// is logical: a workflow spanning multiple invocations persists its
// state between steps and resumes when the correlated reply arrives.
package runtime
