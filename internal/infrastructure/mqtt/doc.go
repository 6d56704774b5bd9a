// Package mqtt provides MQTT client connectivity for hamrelay.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The relay sits between the radio side and the home automation devices,
// both of which speak MQTT through the same broker:
//
//	DTMF decoder ↔ MQTT Broker ↔ hamrelay ↔ MQTT Broker ↔ Tasmota devices
//
// Message handlers run concurrently (paho's ordered routing is disabled)
// so a handler may subscribe or publish without blocking the router.
// Callers that need ordering must serialise inside the handler.
//
// # Security Considerations
//
//   - Enable TLS when the broker is not on the local host (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, &mqtt.Will{
//	    Topic: "hamqtt/LWT", Payload: "Offline", Retained: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("hamqtt/rx", 0,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish("hamqtt/tx", []byte("outside temperature 21.5"), 0, false)
package mqtt
