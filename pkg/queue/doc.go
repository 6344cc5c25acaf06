/*
Package queue provides the abstract job transport consumed by the scheduler
and its Redis-backed implementation.

Four named queues (collectors, harvesters, priority, uploads) each carry a
retry and throughput policy: a worker pool size, an optional rate limit, a
total attempt count, and an exponential backoff base. Repeating jobs are
registered with cron patterns (5-field, or 6-field with a leading seconds
field) and fed onto their queue by an in-process cron runner; failed jobs
wait on a delayed sorted set until their retry comes due.
*/
package queue
