package signal

// Direction is the base signal direction.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// Scores holds the component scores that produced a signal.
type Scores struct {
	Technical      float64 `json:"technical"`      // [-100, 100]
	Pattern        float64 `json:"pattern"`        // [-100, 100]
	Microstructure float64 `json:"microstructure"` // [-100, 100]
	Volume         float64 `json:"volume"`         // [-100, 100]
	Composite      float64 `json:"composite"`      // weighted sum
}

// Signal is the aggregated base signal for one ticker. Created fresh each
// cycle and never mutated after creation.
type Signal struct {
	Ticker       string    `json:"ticker"`
	Direction    Direction `json:"direction"`
	Confidence   int       `json:"confidence"` // [0, 100]
	Scores       Scores    `json:"scores"`
	Ambiguous    bool      `json:"ambiguous"`
	GateRejected bool      `json:"gate_rejected"`
	GateZScore   float64   `json:"gate_z_score"`
	Toxic        bool      `json:"toxic"`
	Reasoning    string    `json:"reasoning"`
}
