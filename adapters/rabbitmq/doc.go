/*
Package rabbitmq publishes integration events to RabbitMQ.
Events go to a durable topic exchange with their topic as routing key. The
package includes an auto-reconnect publisher and supports optional header
propagation via a bus.HeaderPropagator.
*/
package rabbitmq
