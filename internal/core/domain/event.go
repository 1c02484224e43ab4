package domain

// Event is a single entry emitted inside a transaction log.
type Event struct {
	Address    string   `json:"address"`
	Identifier string   `json:"identifier"`
	Topics     []string `json:"topics"`
	Data       string   `json:"data"`
	Order      int      `json:"order"` // position within the parent log
}

// TransactionLog is a record returned by the log backend.
type TransactionLog struct {
	Address   string  `json:"address"`
	Events    []Event `json:"events"`
	Timestamp int64   `json:"timestamp"` // unix seconds
}
