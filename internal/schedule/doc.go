// Package schedule handles cron expressions for periodic maintenance.
//
// Cron functions parse and validate cron expressions and compute upcoming run times.
// Every runs a function on a cron schedule until its context is cancelled.
package schedule
