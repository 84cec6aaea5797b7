package tasks

// Outcome is what a task function reports back to the queue.
type Outcome struct {
	value any
	err   error
	retry bool
}

// Done finishes the task successfully with value as its result.
func Done(value any) Outcome {
	return Outcome{value: value}
}

// Retry asks the queue to run the task again after a backoff delay.
func Retry(err error) Outcome {
	return Outcome{err: err, retry: true}
}

// Fatal finishes the task as failed without retrying.
func Fatal(err error) Outcome {
	return Outcome{err: err}
}

func (o Outcome) Err() error {
	return o.err
}

func (o Outcome) Value() any {
	return o.value
}

func (o Outcome) Retryable() bool {
	return o.retry && o.err != nil
}
