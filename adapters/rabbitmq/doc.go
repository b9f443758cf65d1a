/*
Package rabbitmq provides the RabbitMQ transport for the event bus.

Every event name maps to one queue (durable only with Config.Durable) on the
default exchange, with the routing key equal to the queue name. Publish opens
a short-lived connection per call. Each consumer holds its own connection for its lifetime
and consumes with automatic acknowledgement, so delivery is at-most-once.
Lost connections are not re-established.
*/
package rabbitmq
