// Package events fans scan progress out to live viewers and the event bus.
package events

import (
	"time"

	"dogfinder/internal/logger"
	"dogfinder/internal/scan"
)

// Message is the wire form of a scan event.
type Message struct {
	ScanID     string    `json:"scan_id"`
	Phase      string    `json:"phase"`
	Step       int       `json:"step"`
	Found      bool      `json:"found"`
	Confidence float64   `json:"confidence"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// FromScan converts a controller event into a Message.
func FromScan(e scan.Event) Message {
	msg := Message{
		ScanID: e.ScanID,
		Phase:  e.Phase.String(),
		Step:   e.Step,
		Time:   e.Time,
	}
	if e.Result != nil {
		msg.Found = e.Result.Found
		msg.Confidence = e.Result.BestConfidence
	}
	if e.Err != nil {
		msg.Error = e.Err.Error()
	}
	return msg
}

// Sink receives every scan message.
type Sink interface {
	Publish(msg Message) error
}

// Dispatcher forwards scan events to its sinks. A failing sink is logged and
// does not affect the scan or the other sinks.
type Dispatcher struct {
	sinks  []Sink
	logger *logger.Logger
}

func NewDispatcher(logger *logger.Logger, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{logger: logger}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
	return d
}

// Observe is a scan.Observer.
func (d *Dispatcher) Observe(e scan.Event) {
	msg := FromScan(e)
	for _, s := range d.sinks {
		if err := s.Publish(msg); err != nil {
			d.logger.Error("Failed to publish scan event %s/%s: %v", msg.ScanID, msg.Phase, err)
		}
	}
}
