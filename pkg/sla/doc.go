// Package sla tracks a wall-clock expiration window per job.
//
// Jobs start Green when added. MarkCompleted and MarkRejected (Red) end
// tracking on the caller's behalf; CheckExpiredJobs moves overdue Green jobs
// to Brown. Terminal jobs are evicted immediately and only survive as
// counters and return values.
//
// The tracker never touches the job queue. Callers register OnExpired or
// use the ids returned by CheckExpiredJobs to remove expired work.
package sla
