// Package scheduler registers named schedules and fires them on time.
//
// It only decides when. Execution is handed to an Enqueuer, which in the bot
// is the event-loop bridge.
package scheduler
