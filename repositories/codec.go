package repositories

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Documents are stored as deterministic CBOR. Struct fields without a cbor
// tag fall back to their json tag, so domain types need no disk twin.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Keep sub-second precision, messages are ordered by timestamp.
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("repositories: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("repositories: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Decode exposes the document decoder to read-only tooling.
func Decode(data []byte, v any) error {
	return unmarshal(data, v)
}
