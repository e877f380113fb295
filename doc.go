// Package main provides the entry point of rolemirror.
// rolemirror mirrors role membership between linked Discord communities: it plans
// role changes from gateway events, executes them through a persistent job queue
// with retries and echo suppression, reconciles drift, and manages mappings through
// CSV or XLSX plans with snapshot based rollback. A read-only status API exposes
// the queue, the audit log and prometheus metrics.
package main
