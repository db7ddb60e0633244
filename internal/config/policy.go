package config

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RetryPolicy governs how failed recurring charges are retried before the
// schedule is parked.
type RetryPolicy struct {
	RetryIntervalDays int `mapstructure:"retryIntervalDays"`
	MaxRetryCount     int `mapstructure:"maxRetryCount"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		RetryIntervalDays: 3,
		MaxRetryCount:     3,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if p.RetryIntervalDays <= 0 {
		p.RetryIntervalDays = defaults.RetryIntervalDays
	}
	if p.MaxRetryCount <= 0 {
		p.MaxRetryCount = defaults.MaxRetryCount
	}
	return p
}

// RetryPolicyHolder serves the current retry policy and follows file changes
// without a restart.
type RetryPolicyHolder struct {
	current atomic.Value // holds RetryPolicy
}

func NewRetryPolicyHolder() (*RetryPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tenantops/config")
	v.AddConfigPath("/etc/tenantops")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TENANTOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultRetryPolicy()
		v.SetDefault("recurring.retryIntervalDays", defaults.RetryIntervalDays)
		v.SetDefault("recurring.maxRetryCount", defaults.MaxRetryCount)
	}

	holder := &RetryPolicyHolder{}
	if err := holder.load(v); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		if err := holder.load(v); err != nil {
			log.Printf("retry policy reload failed: %v", err)
		}
	})
	v.WatchConfig()

	return holder, nil
}

func (h *RetryPolicyHolder) load(v *viper.Viper) error {
	var policy RetryPolicy
	if err := v.UnmarshalKey("recurring", &policy); err != nil {
		return err
	}
	h.current.Store(policy.withDefaults())
	return nil
}

func (h *RetryPolicyHolder) Current() RetryPolicy {
	if h == nil {
		return DefaultRetryPolicy()
	}
	if policy, ok := h.current.Load().(RetryPolicy); ok {
		return policy
	}
	return DefaultRetryPolicy()
}
