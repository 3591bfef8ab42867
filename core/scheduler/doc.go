// Package scheduler runs the periodic jobs of the service on robfig/cron:
// the DSF retry and the pending approvals reminder.
package scheduler
