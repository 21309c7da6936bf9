// Package sandbox evaluates untrusted form snippets.
//
// JavaScript snippets run in a fresh goja runtime per call with eval and
// the Function constructor removed, builtin prototypes frozen, a call
// stack ceiling and a wall-clock deadline. Arguments are transferred in
// and frozen, so a snippet can read but never mutate caller data, and
// results are copied back out. JSON-logic rules are translated into
// expr programs instead of being interpreted in JavaScript.
//
// Evaluation never fails loudly: syntax errors, exceptions, timeouts and
// non-transferable results all come back as nil.
package sandbox
