package domain

// Conversation is the full dialogue sent to a provider: history first, the
// current user turn last. It is built per request and not modified afterwards.
type Conversation []Turn

// Last returns the final turn, which is the current user turn.
func (c Conversation) Last() (Turn, bool) {
	if len(c) == 0 {
		return Turn{}, false
	}
	return c[len(c)-1], true
}

// History returns every turn before the current one.
func (c Conversation) History() Conversation {
	if len(c) == 0 {
		return nil
	}
	return c[:len(c)-1]
}

// Exchange is one completed request/reply pair as recorded in the exchange log.
type Exchange struct {
	PK          string
	SK          string
	ExchangeID  string
	Message     string
	Attachments []string
	Reply       string
	Model       string
	Status      string
	TTL         int64
}
