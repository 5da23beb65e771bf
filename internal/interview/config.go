package interview

import "time"

const (
	DefaultMaxDuration          = 1800 * time.Second
	DefaultMaxQuestions         = 15
	DefaultMaxFollowUpsPerTopic = 2
	DefaultRetryBackoff         = time.Second
	defaultMaxLogLength         = 200
)

// Config holds the interview limits.
type Config struct {
	MaxDuration          time.Duration
	MaxQuestions         int
	MaxFollowUpsPerTopic int
	// RetryBackoff is the wait before the single retry of strategy, question and
	// evaluation calls.
	RetryBackoff time.Duration
	MaxLogLength int
}

// DefaultConfig returns the stock limits: 30 minutes, 15 questions, 2 follow-ups per topic.
func DefaultConfig() Config {
	return Config{
		MaxDuration:          DefaultMaxDuration,
		MaxQuestions:         DefaultMaxQuestions,
		MaxFollowUpsPerTopic: DefaultMaxFollowUpsPerTopic,
		RetryBackoff:         DefaultRetryBackoff,
		MaxLogLength:         defaultMaxLogLength,
	}
}

func (c Config) normalize() Config {
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	if c.MaxQuestions <= 0 {
		c.MaxQuestions = DefaultMaxQuestions
	}
	if c.MaxFollowUpsPerTopic < 0 {
		c.MaxFollowUpsPerTopic = DefaultMaxFollowUpsPerTopic
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.MaxLogLength <= 0 {
		c.MaxLogLength = defaultMaxLogLength
	}
	return c
}
