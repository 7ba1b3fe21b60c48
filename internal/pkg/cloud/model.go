package cloud

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexString accepts a JSON string or number.
type FlexString string

func (fs *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*fs = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*fs = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*fs = FlexString(n.String())
	return nil
}

type Home struct {
	HomeID FlexString `json:"home_id"`
	Name   string     `json:"name"`
	MAC    string     `json:"mac"`
	AESKey string     `json:"aes_key"`
}

type loginResponse struct {
	Homes   []Home `json:"homes"`
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (lr loginResponse) reason() string {
	return strings.TrimSpace(strings.Join([]string{lr.Status, lr.Error, lr.Message}, " "))
}

// Session is what a successful login hands back. Key is the decoded AES key.
type Session struct {
	Email  string
	HomeID string
	MAC    string
	AESKey string
	Key    []byte
	Homes  []Home
}
