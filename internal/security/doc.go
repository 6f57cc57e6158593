// Package security builds the configuration posture report exposed by
// Engine.SecurityReport and Config.Lint.
//
// # What this package must NOT do
//
//   - Import authcore; the root package flattens its Config into ReportInput.
//   - Reject configurations. Validation belongs to Config.Validate.
package security
