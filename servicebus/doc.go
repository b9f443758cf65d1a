/*
Package servicebus provides the event bus: commands are sent to their single
in-process handler, events are published to a broker queue named after the
event and consumed back into every subscribed handler.

Delivery is at-most-once. Messages are acknowledged when the broker hands them
to the consumer, so a handler failure loses the message; there is no retry,
redelivery, dead-letter queue, unsubscribe or reconnect. Failures are reported
through WithErrorHandler and the logger, and never stop a consumer loop.
*/
package servicebus
