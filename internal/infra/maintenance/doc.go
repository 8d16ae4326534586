// Package maintenance runs the server's periodic background work: rate
// limit window cleanup, block list and failure tracker expiry, scheduled
// backups and backup retention.
//
// Each Task runs on its own ticker. A slow or failing task never delays
// another one.
package maintenance
