//go:build !sonic

package artifacts

import (
	"github.com/goccy/go-json"
)

var jsonMarshalIndent = json.MarshalIndent
var jsonUnmarshal = json.Unmarshal
