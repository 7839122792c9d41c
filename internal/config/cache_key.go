package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamKey returns the cache key for a single exam record
func (r *CacheKeyStruct) ExamKey(examID string) string {
	return fmt.Sprintf("exam:%s", examID)
}

// ActiveExamsKey returns the cache key for the active exam listing
func (r *CacheKeyStruct) ActiveExamsKey() string {
	return "exams:active"
}

// QuestionPoolKey returns the cache key for the active question pool
func (r *CacheKeyStruct) QuestionPoolKey() string {
	return "questions:pool"
}

// AttemptChannel returns the Redis PubSub channel carrying an attempt's notifications
func (r *CacheKeyStruct) AttemptChannel(attemptID string) string {
	return fmt.Sprintf("attempt:%s:events", attemptID)
}

var CacheKey = NewCacheKeyStruct()
