package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Policy holds billing rules that operators may change without a restart.
type Policy struct {
	BillingLookaheadDays int           `mapstructure:"billingLookaheadDays"`
	DefaultCurrency      string        `mapstructure:"defaultCurrency"`
	Accounts             AccountPolicy `mapstructure:"accounts"`
	ProvisioningRetry    RetryPolicy   `mapstructure:"provisioningRetry"`
}

// AccountPolicy names the ledger accounts used when posting.
type AccountPolicy struct {
	Receivable string `mapstructure:"receivable"`
	Payable    string `mapstructure:"payable"`
	Income     string `mapstructure:"income"`
	Cash       string `mapstructure:"cash"`
}

// RetryPolicy shapes the provisioning retry schedule.
type RetryPolicy struct {
	MaxAttempts     int           `mapstructure:"maxAttempts"`
	InitialInterval time.Duration `mapstructure:"initialInterval"`
	MaxInterval     time.Duration `mapstructure:"maxInterval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

func DefaultPolicy() Policy {
	return Policy{
		BillingLookaheadDays: 5,
		DefaultCurrency:      "USD",
		Accounts: AccountPolicy{
			Receivable: "receivable",
			Payable:    "payable",
			Income:     "income_isp",
			Cash:       "cash",
		},
		ProvisioningRetry: RetryPolicy{
			MaxAttempts:     8,
			InitialInterval: time.Minute,
			MaxInterval:     6 * time.Hour,
			Multiplier:      2,
		},
	}
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("isp")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/ispbill")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ISPBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("policy.billingLookaheadDays", defaults.BillingLookaheadDays)
	v.SetDefault("policy.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("policy.accounts.receivable", defaults.Accounts.Receivable)
	v.SetDefault("policy.accounts.payable", defaults.Accounts.Payable)
	v.SetDefault("policy.accounts.income", defaults.Accounts.Income)
	v.SetDefault("policy.accounts.cash", defaults.Accounts.Cash)
	v.SetDefault("policy.provisioningRetry.maxAttempts", defaults.ProvisioningRetry.MaxAttempts)
	v.SetDefault("policy.provisioningRetry.initialInterval", defaults.ProvisioningRetry.InitialInterval)
	v.SetDefault("policy.provisioningRetry.maxInterval", defaults.ProvisioningRetry.MaxInterval)
	v.SetDefault("policy.provisioningRetry.multiplier", defaults.ProvisioningRetry.Multiplier)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var cfg Policy
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	if err := validatePolicy(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(cfg)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Printf("[isp-policy] reload failed: %v", err)
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Printf("[isp-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[isp-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

func validatePolicy(cfg Policy) error {
	if cfg.BillingLookaheadDays < 0 {
		return errors.New("policy.billingLookaheadDays cannot be negative")
	}
	if strings.TrimSpace(cfg.DefaultCurrency) == "" {
		return errors.New("policy.defaultCurrency cannot be empty")
	}
	if cfg.Accounts.Receivable == "" || cfg.Accounts.Income == "" || cfg.Accounts.Cash == "" || cfg.Accounts.Payable == "" {
		return errors.New("policy.accounts must name receivable, payable, income and cash")
	}
	if cfg.ProvisioningRetry.MaxAttempts <= 0 {
		return errors.New("policy.provisioningRetry.maxAttempts must be positive")
	}
	return nil
}
