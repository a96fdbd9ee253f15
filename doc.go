// Package taxclean ingests broker profit-and-loss statements and turns them
// into auditable, tax-ready figures. It is designed to be deterministic and
// auditable: every statement is uniquely identified, history is never
// overwritten, and every irregularity becomes an exception a human resolves.
//
// The core functionalities include:
//   - Identity: a natural key groups every version of one logical statement,
//     and a content fingerprint detects resubmissions.
//   - Client registry: one client per account, with username conflict
//     detection that never silently overwrites a stored identity.
//   - Versioning: submissions are classified as NEW, DUPLICATE, REVISION or
//     CONFLICT and stored as immutable versions with one active version per
//     natural key.
//   - Validation and reconciliation: structural and numeric checks, and a
//     cross-check that monthly rows sum to the reported annual totals.
//   - Tax derivation: a reproducible computation of the annual tax position
//     with numbered explanations, and a review workflow for the resulting
//     tax reports.
//   - Audit trail: an append-only event log and an exception queue.
//
// The Pipeline sequences all of the above for one submission and commits its
// effects to a Store in a single atomic step. This package serves as the
// foundational logic for the `tcs` command-line tool.
package taxclean
