package mqtt

import "fmt"

// Topics builds the relay topic names under a configurable prefix.
//
//	topics := mqtt.Topics{Prefix: "dpfwatch"}
//	topics.Event("alert_raised") // "dpfwatch/event/alert_raised"
type Topics struct {
	Prefix string
}

// Event returns the topic lifecycle events of the given kind are published on.
func (t Topics) Event(kind string) string {
	return fmt.Sprintf("%s/event/%s", t.Prefix, kind)
}

// Command is the topic bridge requests are received on.
func (t Topics) Command() string {
	return fmt.Sprintf("%s/command", t.Prefix)
}

// Response is the topic bridge responses are published on.
func (t Topics) Response() string {
	return fmt.Sprintf("%s/response", t.Prefix)
}

// Status carries the retained online/offline document of this client.
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.Prefix)
}
