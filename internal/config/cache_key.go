package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamProctoringChannel returns the Redis PubSub channel that carries
// escalation events for every supervisor watching an exam.
func (r *CacheKeyStruct) ExamProctoringChannel(examID string) string {
	return fmt.Sprintf("exam:%s:proctoring", examID)
}

// StudentSessionKey holds the JWT ID of a student's most recent login.
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("student_session:%d", studentID)
}

var CacheKey = NewCacheKeyStruct()
