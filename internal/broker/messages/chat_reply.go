package messages

// ChatReply — ответ оператора, приходит из внешнего чат-воркфлоу (out-of-band).
// Status: COMPLETE когда оператор назвал дату, FAILED когда ответа не добились.
type ChatReply struct {
	ConversationID string `json:"conversation_id"`
	VesselName     string `json:"vessel_name"`
	VoyageCode     string `json:"voyage_code,omitempty"`

	Status  string `json:"status"`
	Eta     string `json:"eta,omitempty"`
	Message string `json:"message,omitempty"`
}
