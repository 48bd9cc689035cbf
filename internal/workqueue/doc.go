// Package workqueue provides the cooperative, cancelable work-primitives
// every supervisor in this module is built on: a serial EventLoop, a
// cancelable promise-bearing WorkItem, a FIFO WorkQueue, a fair
// CompositeWorkQueue over several child queues, and an AutoCancellingQueue
// that withdraws items the moment their cancellation fires.
//
// Nothing here is RabbitMQ-specific. The package exists so that
// connection/channel/topology/producer/consumer recovery logic can be
// written as plain sequential code that suspends at well-defined points,
// instead of as a tangle of callbacks and mutexes.
package workqueue
