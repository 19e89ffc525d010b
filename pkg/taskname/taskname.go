package taskname

const (
	// Expiry tasks
	ExpirySweepRun = "coupon:expiry:run"

	// Notification tasks
	NotificationRewardIssued     = "notification:reward_issued"
	NotificationMilestoneGranted = "notification:milestone_granted"
)
