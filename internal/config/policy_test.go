package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, validatePolicy(p))
	assert.Equal(t, 5, p.BillingLookaheadDays)
	assert.Equal(t, time.Minute, p.ProvisioningRetry.InitialInterval)
}

func TestValidatePolicyRejectsMissingAccounts(t *testing.T) {
	p := DefaultPolicy()
	p.Accounts.Income = ""
	assert.Error(t, validatePolicy(p))

	p = DefaultPolicy()
	p.BillingLookaheadDays = -1
	assert.Error(t, validatePolicy(p))
}

func TestStaticPolicyHolder(t *testing.T) {
	p := DefaultPolicy()
	p.DefaultCurrency = "KES"
	holder := NewStaticPolicyHolder(p)
	assert.Equal(t, "KES", holder.Get().DefaultCurrency)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "postgres")
	t.Setenv("GATEWAY_TIMEOUT", "2s")
	t.Setenv("SCHEDULER_ENABLED_JOBS", "expiry, prepare_billing,,")
	t.Setenv("GATEWAY_HTTP_RETRY_MAX", "not-a-number")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.DBType)
	assert.Equal(t, 2*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, []string{"expiry", "prepare_billing"}, cfg.Scheduler.EnabledJobs)
	assert.Equal(t, 0, cfg.Gateway.HTTPRetryMax)
}
