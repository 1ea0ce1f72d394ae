package exception

import "errors"

// Subscriber errors
var (
	ErrSubscriberNilListener     = errors.New("subscriber: nil listener")
	ErrSubscriberUnknownKind     = errors.New("subscriber: unknown kind")
	ErrSubscriberConnectRejected = errors.New("subscriber: connect rejected by breaker")
)
