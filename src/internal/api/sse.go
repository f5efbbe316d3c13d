package api

import (
	"encoding/json"
	"fmt"
	"io"
)

// writeEvent writes one server-sent event with a JSON payload.
func writeEvent(w io.Writer, name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
