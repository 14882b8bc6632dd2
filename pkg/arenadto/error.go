package arenadto

// Rejection codes sent in "error" events.
const (
	CodeNotAPlayer      = "not_a_player"
	CodeOutOfTurn       = "out_of_turn"
	CodeIllegalMove     = "illegal_move"
	CodeSessionNotFound = "session_not_found"
	CodeAlreadyQueued   = "already_queued"
	CodeAlreadyPlaying  = "already_playing"
	CodeNotPlaying      = "not_playing"
	CodeNotFinished     = "not_finished"
	CodeNoOffer         = "no_offer"
	CodeOwnOffer        = "own_offer"
	CodeOfferPending    = "offer_pending"
	CodeMatchNotFound   = "match_not_found"
	CodeServerBusy      = "server_busy"
	CodeBadRequest      = "bad_request"
	CodeInternal        = "internal"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	// Op is the inbound event type that was rejected.
	Op string `json:"op,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "arena error"
}
