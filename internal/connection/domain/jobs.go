package domain

// Job names as exposed by the scheduler and the cron trigger.
const (
	JobNewConnections     = "new_connections"
	JobRefreshConnections = "refresh_connections"
	JobExpiry             = "expiry"
	JobPrepareBilling     = "prepare_billing"
	JobPaidBillings       = "paid_billings"
	JobProvisioningRetry  = "provisioning_retry"
)
