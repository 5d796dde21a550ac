package common

import "time"

var (
	MaxClientRetry        = 5
	DefaultCallTimeout    = 5 * time.Second
	ChainResponseTimeout  = 10 * time.Second
	ExportBatchSize       = 1024
	ChainInboxSize        = 4096
	ResponseBufferExpire  = 2 * time.Minute
	ResponseBufferTick    = 30 * time.Second
	NotificationQueueSize = 1024
	RegisterRetryInterval = 500 * time.Millisecond
	LivenessCheckTimeout  = 500 * time.Millisecond
	LivenessCheckRetries  = 3
	RelockRetries         = 3
	LeaseRenewFraction    = 2
	RedirectBackoff       = 20 * time.Millisecond
	DefaultLeasePeriod    = 10 * time.Second
	DefaultGracePeriod    = 10 * time.Second
	DefaultCapacity       = int64(128 * 1024 * 1024)
	DefaultThresholdHi    = 0.95
	DefaultThresholdLo    = 0.05
)
