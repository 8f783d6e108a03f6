// Package ledger is the persisted delivery history used to make campaign
// runs idempotent.
//
// A Ledger maps an idempotency key (phone + calendar day + campaign) to the
// record of a successful delivery. A key is present if and only if a send for
// it succeeded; failures are never recorded, so a later run retries them.
//
// Storage drivers:
//   - "file": one JSON document per campaign, rewritten in full through a
//     temp file + rename so a crash never leaves a truncated history
//   - "sqlite": one database shared by all campaigns, rows replaced in a
//     single transaction
//
// History wraps a Store with the run-level policy: loading never fails (a
// missing or corrupt history is an empty ledger plus a warning), entries past
// the retention window are pruned on load, and persist failures are reported
// as false instead of aborting a run whose sends already happened.
package ledger
