package store

import (
	"encoding/json"
	"fmt"
)

// MarshalContext encodes a context variant as JSON. Nil contexts encode as
// null.
func MarshalContext(ctx Context) ([]byte, error) {
	if ctx == nil {
		return []byte("null"), nil
	}
	return json.Marshal(ctx)
}

// UnmarshalContext decodes the JSON context variant matching the
// conversation type.
func UnmarshalContext(typ ConversationType, data []byte) (Context, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	switch typ {
	case TypeLoan:
		var c LoanContext
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
		return c, nil
	case TypeService:
		var c ServiceContext
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
		return c, nil
	case TypeEvent:
		var c EventContext
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
		return c, nil
	case TypeLocalGroup:
		var c GroupContext
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown conversation type %q", typ)
	}
}
