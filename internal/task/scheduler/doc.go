// Package scheduler owns the bot's timeline.
//
// One-shot jobs are keyed by job id: scheduling an existing id supersedes the
// previous timer, and a superseded timer can never fire. Recurring jobs
// (cron expressions or intervals) use robfig/cron and serve housekeeping.
//
// The scheduler never runs jobs itself. A due job is enqueued into the task
// engine, which bounds its run time and refuses to run the same job id twice
// at once. A due job picked up later than its misfire tolerance is not run;
// the registered FaultHandler receives a *MisfireError instead, as it does
// for enqueue failures, so no job disappears without a trace.
package scheduler
