package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CandidateSessionKey returns the cache key holding the active JTI and
// upstream session of a candidate.
func (r *CacheKeyStruct) CandidateSessionKey(candidateID string) string {
	return fmt.Sprintf("login:%s", candidateID)
}

// AttemptMetaKey returns the cache key for the persisted attempt header
// (attempt id, start time, duration).
func (r *CacheKeyStruct) AttemptMetaKey(candidateID string) string {
	return fmt.Sprintf("candidate:%s:attempt:meta", candidateID)
}

// AttemptAnswersKey returns the cache key for a candidate's autosaved answers.
func (r *CacheKeyStruct) AttemptAnswersKey(candidateID string) string {
	return fmt.Sprintf("candidate:%s:attempt:answers", candidateID)
}

// RateLimitKey returns the counter key prefix of one client IP.
func (r *CacheKeyStruct) RateLimitKey(scope, ip string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, ip)
}

var CacheKey = NewCacheKeyStruct()
