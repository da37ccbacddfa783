package jobs

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

type RunnerOptions struct {
	Queues          []string
	PollInterval    time.Duration
	BatchSize       int
	LockTTL         time.Duration
	SingleActive    bool
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	JitterMax       time.Duration
	LastErrorMaxLen int

	DispatchTimeout time.Duration

	Logger *logrus.Entry

	Rand *rand.Rand

	ObserveQueueDepthEvery time.Duration
}

func (o *RunnerOptions) setDefaults() {
	if len(o.Queues) == 0 {
		o.Queues = []string{DefaultQueue}
	}
	if o.PollInterval == 0 {
		o.PollInterval = 1 * time.Second
	}
	if o.BatchSize == 0 {
		o.BatchSize = 10
	}
	if o.LockTTL == 0 {
		o.LockTTL = 5 * time.Minute
	}
	if o.BaseBackoff == 0 {
		o.BaseBackoff = 2 * time.Second
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 5 * time.Minute
	}
	if o.JitterMax == 0 {
		o.JitterMax = 200 * time.Millisecond
	}
	if o.LastErrorMaxLen == 0 {
		o.LastErrorMaxLen = 2048
	}
	if o.DispatchTimeout == 0 {
		o.DispatchTimeout = 2 * time.Minute
	}
	if o.ObserveQueueDepthEvery == 0 {
		o.ObserveQueueDepthEvery = 10 * time.Second
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}
}

type CleanerOptions struct {
	Enabled   bool
	Interval  time.Duration
	Retention time.Duration

	Logger *logrus.Entry
}

func (o *CleanerOptions) setDefaults() {
	if o.Interval == 0 {
		o.Interval = 1 * time.Hour
	}
	if o.Retention == 0 {
		o.Retention = 7 * 24 * time.Hour
	}
}

type SchedulerOptions struct {
	Location *time.Location
	Logger   *logrus.Entry
}
