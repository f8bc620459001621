// Package telegram defines the messaging provider interface and the Stage 1
// mock implementation that serves static fixture data with simulated latency.
package telegram
