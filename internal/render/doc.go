// Package render implements the render task: a template, or a set of named
// template fragments, rendered against a job context.
//
// In static mode the context is used as submitted. In dynamic mode the
// form in the context is first resolved against its data, so hidden and
// non-persistent values are removed before any template sees them. Either
// way the context is transferred into a fresh realm per job together with
// the submission helpers, and rendered with a template engine that is
// built once and shared by every job.
package render
