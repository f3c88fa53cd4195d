// Package benchmark measures the frame codec and full request round trips
// over a loopback connection, for both ciphers and a range of payload
// sizes.
//
//	go test -run '^$' -bench . -benchmem ./internal/tests/benchmark/
//
// Compare runs with benchstat after repeating each with -count.
package benchmark
