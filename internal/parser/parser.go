package parser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"wallet-tracker/internal/codec"
	"wallet-tracker/internal/domain"
	"wallet-tracker/internal/storage"
)

// closeConfirmThresholdPct is the minimum absolute price move, relative
// to the recorded entry price, required to treat a close candidate as a
// genuine position exit.
const closeConfirmThresholdPct = 10.0

// defaultLookupTimeout bounds the external price and record lookups in
// the close-check path.
const defaultLookupTimeout = 10 * time.Second

// PriceSource returns the current SOL price of one whole token.
type PriceSource interface {
	MintPrice(ctx context.Context, mint string) (float64, error)
}

// RecordLookup returns the most recent successful trade record for a mint.
type RecordLookup interface {
	GetLatestByMint(ctx context.Context, mint string) (*domain.SwapRecord, error)
}

// Deps carries the external collaborators a Parser needs.
type Deps struct {
	Prices        PriceSource
	Records       RecordLookup
	Classifier    Classifier    // nil means LogMarkerClassifier
	LookupTimeout time.Duration // zero means defaultLookupTimeout
	Logger        *log.Logger
}

// Parser derives a TxEvent from one decoded transaction envelope.
// Every extracted field is computed once and cached, so repeated calls
// return identical results. One Parser per transaction; instances must
// not be shared across goroutines.
type Parser struct {
	frame codec.Value
	deps  Deps

	whoDone bool
	whoVal  string
	whoErr  error

	mintDone bool
	mintVal  string
	mintErr  error

	logsDone bool
	logsVal  []string
	logsErr  error

	tokenDone bool
	tokenVal  domain.TokenAmountChange
	tokenErr  error

	solDone bool
	solVal  domain.SolAmountChange
	solErr  error

	typeDone bool
	typeVal  domain.TxType
	typeErr  error

	parseDone bool
	parseVal  *domain.TxEvent
	parseErr  error
}

// New creates a parser over a transaction envelope produced by the
// dispatcher: a map with signatures, account_keys, block_time and meta.
func New(frame codec.Value, deps Deps) *Parser {
	if deps.Classifier == nil {
		deps.Classifier = LogMarkerClassifier{}
	}
	if deps.LookupTimeout <= 0 {
		deps.LookupTimeout = defaultLookupTimeout
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Parser{frame: frame, deps: deps}
}

// Signature returns the first transaction signature.
func (p *Parser) Signature() (string, error) {
	sigs, err := p.frame.Get("signatures")
	if err != nil {
		return "", fmt.Errorf("signatures: %w", err)
	}
	first, err := sigs.Index(0)
	if err != nil {
		return "", fmt.Errorf("signatures: %w", err)
	}
	return first.Str()
}

// BlockTime returns the block time in unix seconds.
func (p *Parser) BlockTime() (int64, error) {
	bt, err := p.frame.Get("block_time")
	if err != nil {
		return 0, fmt.Errorf("block_time: %w", err)
	}
	return bt.Int64()
}

// Who returns the signer / fee payer: the first account key.
func (p *Parser) Who() (string, error) {
	if p.whoDone {
		return p.whoVal, p.whoErr
	}
	p.whoDone = true

	keys, err := p.frame.Get("account_keys")
	if err != nil {
		p.whoErr = fmt.Errorf("account_keys: %w", err)
		return "", p.whoErr
	}
	first, err := keys.Index(0)
	if err != nil {
		p.whoErr = fmt.Errorf("account_keys: %w", err)
		return "", p.whoErr
	}
	p.whoVal, p.whoErr = first.Str()
	return p.whoVal, p.whoErr
}

// Mint returns the first post token balance mint owned by the signer
// under the token program, excluding wrapped SOL.
func (p *Parser) Mint() (string, error) {
	if p.mintDone {
		return p.mintVal, p.mintErr
	}
	p.mintDone = true

	who, err := p.Who()
	if err != nil {
		p.mintErr = err
		return "", p.mintErr
	}

	balances, err := p.postTokenBalances()
	if err != nil {
		p.mintErr = err
		return "", p.mintErr
	}

	for _, entry := range balances {
		owner, err := entry.Get("owner")
		if err != nil {
			continue
		}
		if s, err := owner.Str(); err != nil || s != who {
			continue
		}
		programID, err := entry.Get("program_id")
		if err != nil {
			continue
		}
		if s, err := programID.Str(); err != nil || s != domain.TokenProgramID {
			continue
		}
		mint, err := entry.Get("mint")
		if err != nil {
			continue
		}
		s, err := mint.Str()
		if err != nil || s == domain.WSOLMint {
			continue
		}
		p.mintVal = s
		return p.mintVal, nil
	}

	p.mintErr = ErrMintNotFound
	return "", p.mintErr
}

// TokenAmountChange computes the signer's balance movement for the
// resolved mint. Missing pre balance defaults to 0, missing decimals to 6.
func (p *Parser) TokenAmountChange() (domain.TokenAmountChange, error) {
	if p.tokenDone {
		return p.tokenVal, p.tokenErr
	}
	p.tokenDone = true

	who, err := p.Who()
	if err != nil {
		p.tokenErr = err
		return domain.TokenAmountChange{}, p.tokenErr
	}
	mint, err := p.Mint()
	if err != nil {
		p.tokenErr = err
		return domain.TokenAmountChange{}, p.tokenErr
	}

	change := domain.TokenAmountChange{Decimals: 6}

	post, err := p.postTokenBalances()
	if err != nil {
		p.tokenErr = err
		return domain.TokenAmountChange{}, p.tokenErr
	}
	for _, entry := range post {
		if !tokenBalanceMatches(entry, mint, who) {
			continue
		}
		amount, decimals, err := tokenBalanceAmount(entry)
		if err != nil {
			p.tokenErr = fmt.Errorf("post token balance: %w", err)
			return domain.TokenAmountChange{}, p.tokenErr
		}
		change.PostBalance = amount
		change.Decimals = decimals
		break
	}

	if meta, err := p.frame.Get("meta"); err == nil {
		if pre, err := meta.Get("pre_token_balances"); err == nil {
			entries, err := pre.Elems()
			if err == nil {
				for _, entry := range entries {
					if !tokenBalanceMatches(entry, mint, who) {
						continue
					}
					amount, _, err := tokenBalanceAmount(entry)
					if err != nil {
						p.tokenErr = fmt.Errorf("pre token balance: %w", err)
						return domain.TokenAmountChange{}, p.tokenErr
					}
					change.PreBalance = amount
					break
				}
			}
		}
	}

	change.ChangeAmount = int64(change.PostBalance) - int64(change.PreBalance)
	p.tokenVal = change
	return p.tokenVal, nil
}

// SolAmountChange computes the fee payer's lamport movement from the
// first entry of the pre/post balance arrays.
func (p *Parser) SolAmountChange() (domain.SolAmountChange, error) {
	if p.solDone {
		return p.solVal, p.solErr
	}
	p.solDone = true

	pre, err := p.solBalance("pre_balances")
	if err != nil {
		p.solErr = err
		return domain.SolAmountChange{}, p.solErr
	}
	post, err := p.solBalance("post_balances")
	if err != nil {
		p.solErr = err
		return domain.SolAmountChange{}, p.solErr
	}

	p.solVal = domain.SolAmountChange{
		ChangeAmount: int64(post) - int64(pre),
		Decimals:     domain.SOLDecimals,
		PreBalance:   pre,
		PostBalance:  post,
	}
	return p.solVal, nil
}

// TxType classifies the transaction via the configured Classifier.
func (p *Parser) TxType() (domain.TxType, error) {
	if p.typeDone {
		return p.typeVal, p.typeErr
	}
	p.typeDone = true

	token, err := p.TokenAmountChange()
	if err != nil {
		p.typeErr = err
		return "", p.typeErr
	}
	logs, err := p.logMessages()
	if err != nil {
		p.typeErr = err
		return "", p.typeErr
	}
	p.typeVal, p.typeErr = p.deps.Classifier.Classify(token, logs)
	return p.typeVal, p.typeErr
}

// SwapProgramID returns the first known swap program mentioned in the
// logs, or empty when none matches.
func (p *Parser) SwapProgramID() (string, error) {
	logs, err := p.logMessages()
	if err != nil {
		return "", err
	}
	for _, msg := range logs {
		for _, programID := range domain.SwapPrograms {
			if strings.Contains(msg, programID) {
				return programID, nil
			}
		}
	}
	return "", nil
}

// Parse derives the final TxEvent. It returns ErrNotSwapTransaction when
// the frame has no resolvable mint, or when a close candidate fails the
// price-move confirmation. The result is cached; repeated calls return
// the identical event.
func (p *Parser) Parse(ctx context.Context) (*domain.TxEvent, error) {
	if p.parseDone {
		return p.parseVal, p.parseErr
	}
	p.parseDone = true
	p.parseVal, p.parseErr = p.parse(ctx)
	return p.parseVal, p.parseErr
}

func (p *Parser) parse(ctx context.Context) (*domain.TxEvent, error) {
	mint, err := p.Mint()
	if err != nil {
		if errors.Is(err, ErrMintNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNotSwapTransaction, err)
		}
		return nil, err
	}

	signature, err := p.Signature()
	if err != nil {
		return nil, err
	}
	timestamp, err := p.BlockTime()
	if err != nil {
		return nil, err
	}
	token, err := p.TokenAmountChange()
	if err != nil {
		return nil, err
	}
	sol, err := p.SolAmountChange()
	if err != nil {
		return nil, err
	}
	txType, err := p.TxType()
	if err != nil {
		return nil, err
	}
	programID, err := p.SwapProgramID()
	if err != nil {
		return nil, err
	}

	event := &domain.TxEvent{
		Signature:       signature,
		Who:             domain.PumpFunProgramID,
		Mint:            mint,
		TxType:          txType,
		Timestamp:       timestamp,
		PreTokenAmount:  token.PreBalance,
		PostTokenAmount: token.PostBalance,
		ProgramID:       programID,
	}

	switch txType {
	case domain.TxTypeOpenPosition, domain.TxTypeAddPosition:
		event.TxDirection = domain.TxDirectionBuy
		event.FromAmount = absInt64(sol.ChangeAmount)
		event.FromDecimals = sol.Decimals
		event.ToAmount = absInt64(token.ChangeAmount)
		event.ToDecimals = token.Decimals
	default:
		confirmed, err := p.needClosePosition(ctx, mint)
		if err != nil {
			return nil, err
		}
		if !confirmed {
			return nil, fmt.Errorf("%w: price move below close threshold", ErrNotSwapTransaction)
		}
		event.TxDirection = domain.TxDirectionSell
		event.FromAmount = absInt64(token.ChangeAmount)
		event.FromDecimals = token.Decimals
		event.ToAmount = absInt64(sol.ChangeAmount)
		event.ToDecimals = sol.Decimals
	}

	return event, nil
}

// needClosePosition confirms a close candidate by comparing the live
// oracle price against the recorded entry price. A missing trade record
// means the position was never opened by this system, so the close is
// not actionable.
func (p *Parser) needClosePosition(ctx context.Context, mint string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.deps.LookupTimeout)
	defer cancel()

	newPrice, err := p.deps.Prices.MintPrice(ctx, mint)
	if err != nil {
		return false, fmt.Errorf("mint price lookup: %w", err)
	}

	record, err := p.deps.Records.GetLatestByMint(ctx, mint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, fmt.Errorf("%w: no recorded entry for mint %s", ErrNotSwapTransaction, mint)
		}
		return false, fmt.Errorf("trade record lookup: %w", err)
	}

	oldPrice := record.EntryPrice()
	if oldPrice == 0 {
		return false, fmt.Errorf("%w: recorded entry price is zero", ErrNotSwapTransaction)
	}

	changePct := (newPrice - oldPrice) / oldPrice * 100
	p.deps.Logger.Printf("close check: mint=%s old=%.12f new=%.12f change=%.2f%%", mint, oldPrice, newPrice, changePct)
	return math.Abs(changePct) > closeConfirmThresholdPct, nil
}

func (p *Parser) logMessages() ([]string, error) {
	if p.logsDone {
		return p.logsVal, p.logsErr
	}
	p.logsDone = true

	logs, err := p.frame.At("meta", "log_messages")
	if err != nil {
		p.logsErr = fmt.Errorf("log_messages: %w", err)
		return nil, p.logsErr
	}
	p.logsVal, p.logsErr = logs.Strings()
	return p.logsVal, p.logsErr
}

func (p *Parser) postTokenBalances() ([]codec.Value, error) {
	balances, err := p.frame.At("meta", "post_token_balances")
	if err != nil {
		return nil, fmt.Errorf("post_token_balances: %w", err)
	}
	return balances.Elems()
}

func (p *Parser) solBalance(field string) (uint64, error) {
	balances, err := p.frame.At("meta", field)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	first, err := balances.Index(0)
	if err != nil {
		return 0, fmt.Errorf("%w: %s empty", ErrBalanceIndex, field)
	}
	return first.Uint64()
}

func tokenBalanceMatches(entry codec.Value, mint, owner string) bool {
	m, err := entry.Get("mint")
	if err != nil {
		return false
	}
	if s, err := m.Str(); err != nil || s != mint {
		return false
	}
	o, err := entry.Get("owner")
	if err != nil {
		return false
	}
	s, err := o.Str()
	return err == nil && s == owner
}

func tokenBalanceAmount(entry codec.Value) (uint64, int, error) {
	ui, err := entry.Get("ui_token_amount")
	if err != nil {
		return 0, 0, err
	}
	amountVal, err := ui.Get("amount")
	if err != nil {
		return 0, 0, err
	}
	amount, err := amountVal.AmountUint64()
	if err != nil {
		return 0, 0, err
	}
	decimalsVal, err := ui.Get("decimals")
	if err != nil {
		return 0, 0, err
	}
	decimals, err := decimalsVal.Int64()
	if err != nil {
		return 0, 0, err
	}
	return amount, int(decimals), nil
}

func absInt64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
