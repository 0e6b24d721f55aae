// Package notify hands one-time codes to an external delivery transport.
//
// [Gateway] is the transport boundary. [Dispatcher] runs deliveries on a
// bounded worker pool so the request path never waits on email or SMS
// providers; a full queue drops the delivery and reports it. [KafkaGateway]
// publishes delivery requests to a topic, and [Recorder] captures messages
// in tests.
package notify
