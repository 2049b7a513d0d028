// Package domain defines the core business types for the recruiting CRM
// automation backend.
//
// Types in this package are value objects with no database dependencies and
// no HTTP concerns. They are the shared language between handlers, the rule
// engine, services, and repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Validation methods are allowed (they're pure functions on the type)
//   - Constants and enums belong here
package domain
