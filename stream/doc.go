/*
Package stream provides the publish/subscribe primitive the buses are built on:
a synchronous, in-order Broadcast with cancellable subscriptions, plus a small
set of operators (Filter, Map, MapErr, OfType, FlatMap, Merge) for writing sagas
as plain functions from one Source to another.
*/
package stream
