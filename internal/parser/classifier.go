package parser

import (
	"math"
	"strings"

	"wallet-tracker/internal/domain"
)

// MintInitLogMarker appears in the log messages of transactions that
// create a new token mint.
const MintInitLogMarker = "InitializeMint2"

// Classifier decides the position transition a transaction represents.
type Classifier interface {
	Classify(token domain.TokenAmountChange, logMessages []string) (domain.TxType, error)
}

// LogMarkerClassifier is the default binary classification: a mint
// initialization log means a position opened, anything else is treated
// as a close candidate. Close candidates are confirmed separately
// against the price oracle.
type LogMarkerClassifier struct{}

var _ Classifier = LogMarkerClassifier{}

func (LogMarkerClassifier) Classify(_ domain.TokenAmountChange, logMessages []string) (domain.TxType, error) {
	for _, msg := range logMessages {
		if strings.Contains(msg, MintInitLogMarker) {
			return domain.TxTypeOpenPosition, nil
		}
	}
	return domain.TxTypeClosePosition, nil
}

// dustThreshold is the ui-amount below which a remaining token balance
// counts as fully exited.
const dustThreshold = 0.001

// BalanceDeltaClassifier refines the binary scheme into the four-way
// open/add/close/reduce split using pre/post token balances. Opt-in;
// not wired by default.
type BalanceDeltaClassifier struct{}

var _ Classifier = BalanceDeltaClassifier{}

func (BalanceDeltaClassifier) Classify(token domain.TokenAmountChange, _ []string) (domain.TxType, error) {
	scale := math.Pow10(token.Decimals)
	change := float64(token.ChangeAmount) / scale
	pre := float64(token.PreBalance) / scale
	post := float64(token.PostBalance) / scale

	switch {
	case change > 0:
		if pre == 0 && post > 0 {
			return domain.TxTypeOpenPosition, nil
		}
		if post > pre {
			return domain.TxTypeAddPosition, nil
		}
		return "", ErrUnknownTransactionType
	case change < 0:
		if pre > 0 && post < dustThreshold {
			return domain.TxTypeClosePosition, nil
		}
		if post < pre {
			return domain.TxTypeReducePosition, nil
		}
		return "", ErrUnknownTransactionType
	default:
		return "", ErrZeroChangeAmount
	}
}
