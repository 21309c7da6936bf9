// Package templates wraps pongo2 for rendering untrusted, user-authored
// templates.
//
// Templates render with autoescaping off and without access to the file
// system: include, extends, import and ssi are banned and the loader refuses
// every path. Expressions that look like prototype-chain breakouts are
// printed literally instead of evaluated, and HTML entities are unescaped in
// the output.
//
// Compiled templates are cached by content hash. Execution is bounded by
// MaxExecutionTime; a template that overruns is abandoned and reported as a
// timeout.
//
//	engine, err := templates.NewEngine(nil)
//	if err != nil {
//		return err
//	}
//	result, err := engine.Execute(ctx, "Hello {{ name }}", map[string]any{"name": "Ada"})
package templates
