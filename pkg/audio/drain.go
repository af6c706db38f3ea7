package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to release a producer that is still delivering after the consumer
// stopped listening, such as a [Connection] event channel during shutdown.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
