package pki

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/imovelprime/primegate/internal/util"
	"github.com/imovelprime/primegate/internal/uuid"
	"github.com/imovelprime/primegate/storage"
	"github.com/imovelprime/primegate/storage/memory"
)

// DefaultValidityDays is used for both the CA and the leaf certificate.
const DefaultValidityDays = 365

// maxSerialDraws bounds how often a colliding serial is redrawn.
const maxSerialDraws = 3

// Authority signs certificates: the self-signed root (SelfSign) and leaf
// certificates from CSRs (SignCSR). Every serial it uses is reserved in the
// ledger first, scoped to the signing CA's public key.
type Authority struct {
	ledger storage.Ledger
	rand   io.Reader
	now    func() time.Time
	runID  string
	logger *zap.Logger
}

// Option configures an Authority.
type Option func(*Authority)

// WithLedger sets the ledger serials are reserved in. The default is a
// fresh in-memory ledger.
func WithLedger(l storage.Ledger) Option {
	return func(a *Authority) {
		a.ledger = l
	}
}

// WithSerialSource sets the reader serial numbers are drawn from.
func WithSerialSource(r io.Reader) Option {
	return func(a *Authority) {
		a.rand = r
	}
}

// WithClock sets the time source for validity windows.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

// WithRunID tags ledger records with the given run identifier.
func WithRunID(id string) Option {
	return func(a *Authority) {
		a.runID = id
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Authority) {
		a.logger = l
	}
}

// NewAuthority returns an Authority with the given options applied.
func NewAuthority(opts ...Option) *Authority {
	a := &Authority{
		ledger: memory.NewLedger(),
		rand:   rand.Reader,
		now:    time.Now,
		runID:  uuid.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunID returns the identifier stamped on this authority's ledger records.
func (a *Authority) RunID() string {
	return a.runID
}

// Ledger returns the ledger serials are reserved in.
func (a *Authority) Ledger() storage.Ledger {
	return a.ledger
}

// validityWindow returns [now, now+days] in UTC.
func (a *Authority) validityWindow(days int) (time.Time, time.Time, error) {
	if days <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %d days", ErrInvalidValidity, days)
	}
	now := a.now().UTC()
	return now, now.AddDate(0, 0, days), nil
}

// reserveSerial draws random serials until one is new for the authority.
func (a *Authority) reserveSerial(authority, kind, subject string) (*big.Int, error) {
	for attempt := 1; attempt <= maxSerialDraws; attempt++ {
		serial, err := util.RandomSerial(a.rand)
		if err != nil {
			return nil, err
		}
		rec := &storage.IssuanceRecord{
			Serial:   serial.Text(16),
			Kind:     kind,
			Subject:  subject,
			RunID:    a.runID,
			IssuedAt: a.now().UTC(),
		}
		err = a.ledger.Reserve(authority, rec)
		if err == nil {
			return serial, nil
		}
		if !errors.Is(err, storage.ErrSerialExists) {
			return nil, fmt.Errorf("%w: reserving serial: %w", ErrStorage, err)
		}
		a.logger.Warn("serial number collision, drawing again",
			zap.String("serial", rec.Serial),
			zap.Int("attempt", attempt),
		)
	}
	return nil, ErrSerialExhausted
}
