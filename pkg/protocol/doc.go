// ABOUTME: seqplay wire protocol package
// ABOUTME: Defines protocol messages and the producer WebSocket client
// Package protocol implements the seqplay wire protocol.
//
// Producers exchange JSON envelopes {"type", "payload"} with the host over
// a WebSocket at Path. Units travel either as player/enqueue messages with a
// base64 payload or as binary frames carrying the raw bytes.
//
// Example:
//
//	client := protocol.NewClient(protocol.Config{ServerAddr: "localhost:8928", Name: "feed"})
//	err := client.Connect()
//	err = client.Subscribe()
//	err = client.EnqueueBinary(0, payload)
//	for ev := range client.Events { ... }
package protocol
