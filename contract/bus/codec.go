package bus

// Codec turns events into payloads and back. Decode needs the concrete target;
// payloads do not identify their own type.
type Codec interface {
	Name(v any) string
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	ContentType() string
}
