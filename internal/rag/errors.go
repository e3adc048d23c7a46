package rag

import "errors"

// ErrRateLimitExceeded 当前设备在本周期内的知识库提问配额已用完
var ErrRateLimitExceeded = errors.New("本设备的知识库提问次数已用完，请在下个周期再试")
