package api

import (
	"fmt"
	"io"
)

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}

func writeSSERetry(w io.Writer, retryMs int64) error {
	_, err := fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	return err
}
