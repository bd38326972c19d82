package chunk

import (
	"github.com/ossrs/go-dcsctp/param"
)

// ReConfig is the RFC 6525 RE-CONFIG chunk: a container for one or two
// re-configuration parameters (request/response pairs for stream reset
// negotiation). The stream-reset engine in the reconfig package interprets
// Parameters; this type only handles the wire envelope.
type ReConfig struct {
	Parameters []param.Parameter
}

func (v *ReConfig) Type() Type    { return TypeReConfig }
func (v *ReConfig) Flags() uint8 { return 0 }

func (v *ReConfig) MarshalBody() ([]byte, error) {
	return param.EncodeAll(v.Parameters)
}

func unmarshalReConfig(h header, value []byte) (Chunk, error) {
	params, err := param.ParseAll(value)
	if err != nil {
		return nil, err
	}
	return &ReConfig{Parameters: params}, nil
}
