// Package repositories implements SQLite persistence for the submission history.
//
// [SubmissionRepository] appends one row per add attempt and lists them newest first. Rows are ordered by
// a per-table sequence number rather than by timestamp, so submissions recorded within the same clock tick
// keep their insertion order. The [NextSequence] function atomically increments the counter stored in the
// submissions_sequence table.
//
// The repository also implements the API client's recorder hook, so it can be handed directly to the client.
package repositories
