/*
Package scheduler drives component execution. It registers repeating
collector and harvester jobs on the queue set, consumes the worker queues,
and wires collector completion events to debounced harvester triggers so a
burst of source updates causes at most one derivation per window.

The harvester cycle is cursor based: the date of the harvester's latest own
record marks where the next source slice begins, so re-running without new
source data is a no-op.
*/
package scheduler
