package config

import "time"

type SessionConfig interface {
	GetCheckInterval() time.Duration
	GetWarningThreshold() time.Duration
	GetIdleTimeout() time.Duration
	GetBootstrapTimeout() time.Duration
}

type Session struct {
	file *File
}

var _ SessionConfig = Session{}

func (s Session) GetCheckInterval() time.Duration {
	return GetEnvDuration("SESSION_CHECK_INTERVAL", s.file.Session.CheckInterval, time.Minute)
}

func (s Session) GetWarningThreshold() time.Duration {
	return GetEnvDuration("SESSION_WARNING_THRESHOLD", s.file.Session.WarningThreshold, 5*time.Minute)
}

// GetIdleTimeout is how long a tab may go without interaction before it
// lets its session lapse instead of refreshing it.
func (s Session) GetIdleTimeout() time.Duration {
	return GetEnvDuration("SESSION_IDLE_TIMEOUT", s.file.Session.IdleTimeout, 30*time.Minute)
}

func (s Session) GetBootstrapTimeout() time.Duration {
	return GetEnvDuration("SESSION_BOOTSTRAP_TIMEOUT", s.file.Session.BootstrapTimeout, 3*time.Second)
}

type RetryConfig interface {
	GetMaxRetries() int
	GetRetryBaseDelay() time.Duration
	GetRetryMaxDelay() time.Duration
}

type Retry struct {
	file *File
}

var _ RetryConfig = Retry{}

func (r Retry) GetMaxRetries() int {
	return GetEnvInt("REFRESH_MAX_RETRIES", r.file.Retry.MaxRetries, 3)
}

func (r Retry) GetRetryBaseDelay() time.Duration {
	return GetEnvDuration("REFRESH_BASE_DELAY", r.file.Retry.BaseDelay, time.Second)
}

func (r Retry) GetRetryMaxDelay() time.Duration {
	return GetEnvDuration("REFRESH_MAX_DELAY", r.file.Retry.MaxDelay, 10*time.Second)
}
