// Package ws is the WebSocket session layer over the subscription hub.
//
// Each connection gets a hub subscriber; writePump drains its queue onto the
// wire while readPump keeps the connection alive (protocol pong frames) and
// answers application-level {"type":"ping"} messages. All writes happen on
// the writePump goroutine.
//
// Messages sent to clients:
//
//	{"type":"connection_established","message":"Connected to giveaway updates"}
//	{"type":"giveaway_update","cause":"expiry|forced_update","version":N,"data":{...}}
//	{"type":"pong"} / {"type":"error","message":"Invalid JSON"}
//
// The upgrader accepts all origins; apply CORS restrictions at the reverse
// proxy. The endpoint is mounted at /ws/giveaway by the server.
package ws
