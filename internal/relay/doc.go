// Package relay turns DTMF codes received over MQTT into MQTT actions and
// queries, and turns device responses into spoken replies.
//
// # Flow
//
//	DTMF decoder ──► hamqtt/rx ──► Engine.Dispatch ──► device topic
//	                                                       │
//	radio TTS ◄──── hamqtt/tx ◄── Engine.OnMessage ◄── response topic
//
// A code starting with '*' is an action: its payload is published and
// its description is replied at once. A code starting with '#' is a
// query: the engine remembers it as pending, subscribes to its response
// topic (once per topic), publishes the request, and replies
// "<description> <value>" when a message on the response topic arrives.
//
// # Correlation
//
// Responses are matched to pending queries by exact topic equality, in
// registration order. In ModeRetire a query is answered once and then
// dropped; queries on a shared topic whose key path is absent stay
// pending for their own message, and a message answers only the oldest
// of several pending queries with the same code. In ModePersistent
// nothing is dropped.
//
// # Presence
//
// The relay publishes retained "Online" on <base>/LWT when it starts and
// on every reconnect. The broker publishes "Offline" there if the
// connection drops. Shutdown publishes "Stopped" on <base>/status.
package relay
