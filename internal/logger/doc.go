// Package logger wraps zap with a process-global sugared logger and context
// plumbing. Code logs through the context (Info, InfoKV, Errorf, ...), and
// entry points shape that context with WithName or WithKV so every line a
// component emits carries its name and request-scoped fields. The global
// level is atomic and adjustable at runtime through SetLevel.
package logger
