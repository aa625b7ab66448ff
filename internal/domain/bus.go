package domain

// MessageBus hands inbound messages from channels to the relay workers.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	Close()
}
