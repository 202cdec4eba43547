// Package relay mirrors agent progress onto an MQTT broker so that
// renderers and dashboards outside the process can follow a session.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it publishes a retained device info payload and a birth
// message ("online") to the availability topic. A will message moves
// the availability topic to "offline" on unexpected disconnects.
//
// Topics, under <prefix>/<device>:
//
//	availability                     online | offline (retained)
//	info                             device info JSON (retained)
//	stats                            today's token totals (retained)
//	sessions/<session>/<kind>        one agent event per message
//	surfaces/<surface>               latest A2UI message per surface (retained)
package relay
