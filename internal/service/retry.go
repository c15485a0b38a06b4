package service

// Retry bounds passed to the executor per call class. Writes are retried only
// when they are idempotent by reference.
const (
	readRetries            = 2
	idempotentWriteRetries = 2
	noRetry                = 0
)
