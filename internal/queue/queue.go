package queue

// SendJob is one per-recipient dispatch unit submitted by the dispatcher and
// consumed by the send worker. Jobs are independent; the queue gives no
// ordering guarantee between recipients and may redeliver a job.
type SendJob struct {
	MessageLogID int `json:"message_log_id"`
	CampaignID   int `json:"campaign_id"`
	RecipientID  int `json:"recipient_id"`
}

// JobQueue is the outbound queue dependency as seen by the dispatcher.
// It is injected rather than used as a process-wide singleton so tests can
// substitute an in-memory fake.
type JobQueue interface {
	Publish(job SendJob) error
}
