package websocket

// Message is the caller-facing unit assembled from one or more (defragmented)
// data frames, or carried as-is for control frames, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.6.
type Message struct {
	Opcode Opcode
	Data   []byte

	// Status and Reason are populated only when Opcode == OpcodeClose.
	Status StatusCode
	Reason string
}
