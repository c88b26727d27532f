// Package logging writes one JSON object per domain log line through the
// standard logger, so process output and domain records share a sink.
package logging

import (
	"encoding/json"
	"log"
	"time"
)

type Fields struct {
	Service  string `json:"service"`
	OrderID  int64  `json:"order_id,omitempty"`
	SellerID int64  `json:"seller_id,omitempty"`
	Event    string `json:"event,omitempty"`
	Status   string `json:"status,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

func Log(f Fields) {
	log.Print(Format(f))
}

// Err is Log with the error text filled in.
func Err(f Fields, err error) {
	if err != nil {
		f.Error = err.Error()
	}
	Log(f)
}

func Format(f Fields) string {
	payload := struct {
		Fields
		Timestamp string `json:"timestamp"`
	}{f, time.Now().UTC().Format(time.RFC3339Nano)}
	data, err := json.Marshal(payload)
	if err != nil {
		return `{"service":"` + f.Service + `","status":"log_error"}`
	}
	return string(data)
}
