package outbox

import "context"

// Test-only bridges so the external test package can drive the worker.
func (w *Worker) ProcessOnce(ctx context.Context) error { return w.processOnce(ctx) }

func (w *Worker) TopicFor(name string) string { return w.topicFor(name) }
