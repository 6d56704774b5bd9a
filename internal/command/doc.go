// Package command holds the table of DTMF codes the relay understands.
//
// Each Entry maps a code to an MQTT publish. Codes starting with '*' are
// actions: the relay publishes and immediately confirms with the entry's
// description. Codes starting with '#' are queries: the relay publishes,
// then waits for the device's JSON response and reads a value out of it.
//
// The table is loaded from YAML at startup and never changes while the
// relay runs:
//
//	commands:
//	  - code: "#100"
//	    description: outside temperature
//	    action_topic: cmnd/ch4_01/STATUS
//	    action_payload: "8"
//	    response_topic: ch4_01/stat/STATUS8
//	    response_key_path: StatusSNS.SI7021.Temperature
//
// When a code appears more than once the first row wins; the rest are
// reported by NewRegistry so they can be logged at startup.
package command
