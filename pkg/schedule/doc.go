// Package schedule provides recurring schedules and a runner for them.
//
// Every() fires at fixed intervals; Cron() and ParseCron() accept cron
// expressions. The SLA sweep is driven by a Schedule.
package schedule
