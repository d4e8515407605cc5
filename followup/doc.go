// Package followup runs the work queued after a successful code exchange:
// health data backfills for oura and fitbit, and recording the fitbit
// webhook collections an integration should be subscribed to.
//
// Requests are scheduled through adapters/gojob, held in a go-job
// compatible queue and drained by a Runner that acks, retries or dead
// letters each delivery.
package followup
