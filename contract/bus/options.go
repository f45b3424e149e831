package bus

// PublishOptions controls integration event publishing.
type PublishOptions struct {
	TopicOverride string
	Key           string
	Headers       map[string]string
}
