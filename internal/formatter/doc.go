// Package formatter renders submitted field values as human-readable HTML
// fragments for emails and documents.
//
// Formatting is a registry of strategies keyed by component type. The
// built-in strategies cover passwords, addresses, signatures, nested
// containers and grids, dates, option labels, file links and surveys;
// callers may register more.
package formatter
