package models

import "time"

// IsOverdue derives a job's overdue flag: the job has a scheduled date in the
// past and at least one task that is not completed.
func IsOverdue(scheduledDate *time.Time, now time.Time, hasIncompleteTasks bool) bool {
	if scheduledDate == nil {
		return false
	}
	return hasIncompleteTasks && scheduledDate.Before(now)
}

// All returns every model managed by the schema, in migration order
func All() []interface{} {
	return []interface{}{&User{}, &Equipment{}, &Job{}, &JobTask{}}
}
