package storage

import "encoding/json"

// IDLData holds all the IDL documents cached by the CLI.
// The key of the map is the program's base58 address.
type IDLData struct {
	IDLs map[string]json.RawMessage `json:"idls"`
}
