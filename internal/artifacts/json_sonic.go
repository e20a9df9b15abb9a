//go:build sonic

package artifacts

import (
	"github.com/bytedance/sonic"
)

var jsonMarshalIndent = sonic.MarshalIndent
var jsonUnmarshal = sonic.Unmarshal
