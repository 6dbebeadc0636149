// Package model defines shared data types used across the monitor.
//
// Conventions:
//   - Amounts: decimal.Decimal, parsed from the venue's string encoding
//   - Timestamps: time.Time in UTC, taken from the venue's millisecond epoch
//   - Addresses: lower-case 0x-prefixed hex as configured
package model
