package wshandler

import (
	"encoding/json"

	ws "github.com/ecodeli/delivery-tracking-system/pkg/wsHub"
)

func errorResponse(conn *ws.Conn, message any) error {
	return conn.Send(
		map[string]any{
			"error": message,
		})
}

func failedValidationResponse(conn *ws.Conn, errors map[string]string) error {
	return errorResponse(conn, errors)
}

// decode remarshals a loosely-typed inbound message into a typed command.
func decode(msg map[string]any, dst any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
