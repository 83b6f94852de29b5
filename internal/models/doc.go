// Package models defines persistent entities and the repository interface for the playlist service.
//
// [Submission] records every attempt to add a track to the playlist, with one of the statuses
// [StatusAdded], [StatusDuplicate] or [StatusFailed]. Submissions are written by the API client's
// recorder hook and listed by the history command.
//
// All persistent entities implement the [Model] interface. The [Repository] interface defines the
// data access operations implemented in the repositories package.
package models
