// Package notifier runs the scheduled fan-out jobs: the daily plan and the
// static meal and hydration reminders.
//
// A run snapshots its recipients once, then submits one bridge action per
// eligible recipient, keyed by recipient so it stays ordered with that
// recipient's own updates. Every recipient gets exactly one outcome
// (delivered, skipped or failed); one recipient's failure never touches
// another's. A job is either Idle or Running, and a firing that finds it
// Running is skipped.
package notifier
