// Package numbering allocates human readable document numbers of the form
// <PREFIX><YYYY><SEQ6>. Sequences are kept per (prefix, year) scope in the
// number_sequences table and advanced under a row lock, so concurrent
// allocations in one scope are serialized by the database.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/bizledger/internal/clock"
	"github.com/smallbiznis/bizledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const sequenceDigits = 6

var (
	ErrSequenceExhausted = errors.New("number_sequence_exhausted")
	ErrLockTimeout       = errors.New("number_scope_lock_timeout")
)

// Sequence is the last value handed out for one scope.
type Sequence struct {
	Prefix    string    `gorm:"primaryKey;type:varchar(16)"`
	Year      int       `gorm:"primaryKey;autoIncrement:false"`
	LastValue int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Sequence) TableName() string { return "number_sequences" }

// Scope identifies an independent sequence.
type Scope struct {
	Prefix string
	Year   int
}

func (s Scope) lockKey() string {
	return fmt.Sprintf("bizledger:numbering:%s:%d", s.Prefix, s.Year)
}

// Format renders a number, zero padding the sequence to six digits.
func Format(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s%04d%0*d", prefix, year, sequenceDigits, seq)
}

// Parse splits a number produced by Format for the given prefix.
func Parse(prefix, number string) (year int, seq int64, ok bool) {
	rest, found := strings.CutPrefix(number, prefix)
	if !found || len(rest) != 4+sequenceDigits {
		return 0, 0, false
	}
	y, err := strconv.Atoi(rest[:4])
	if err != nil {
		return 0, 0, false
	}
	s, err := strconv.ParseInt(rest[4:], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return y, s, true
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Ledger *config.LedgerConfigHolder
	Locker ScopeLocker `optional:"true"`
}

// Allocator hands out sequence values. Each allocation commits in its own
// short transaction: a number is never reused, though a failed document
// insert leaves a gap.
type Allocator struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	ledger *config.LedgerConfigHolder
	locker ScopeLocker
}

func NewAllocator(p Params) *Allocator {
	return &Allocator{
		db:     p.DB,
		log:    p.Log.Named("invoice.numbering"),
		clock:  p.Clock,
		ledger: p.Ledger,
		locker: p.Locker,
	}
}

// NextNumber allocates the next number for prefix in the current year.
func (a *Allocator) NextNumber(ctx context.Context, prefix string) (string, error) {
	scope := Scope{Prefix: prefix, Year: a.clock.Now().Year()}
	seq, err := a.Next(ctx, scope)
	if err != nil {
		return "", err
	}
	return Format(scope.Prefix, scope.Year, seq), nil
}

// Next increments and returns the sequence of scope.
func (a *Allocator) Next(ctx context.Context, scope Scope) (int64, error) {
	release, err := a.lock(ctx, scope)
	if err != nil {
		return 0, err
	}
	defer release()

	var value int64
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := a.clock.Now()
		seed := Sequence{Prefix: scope.Prefix, Year: scope.Year, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		res := tx.Exec(
			`UPDATE number_sequences SET last_value = last_value + 1, updated_at = ? WHERE prefix = ? AND year = ?`,
			now, scope.Prefix, scope.Year,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("number sequence %s/%d not found", scope.Prefix, scope.Year)
		}

		return tx.Raw(
			`SELECT last_value FROM number_sequences WHERE prefix = ? AND year = ?`,
			scope.Prefix, scope.Year,
		).Scan(&value).Error
	})
	if err != nil {
		return 0, err
	}
	if value >= 1_000_000 {
		return 0, ErrSequenceExhausted
	}
	return value, nil
}

// lock takes the optional cross-process scope lock. A Redis failure degrades
// to database serialization only.
func (a *Allocator) lock(ctx context.Context, scope Scope) (func(), error) {
	noop := func() {}
	if a.locker == nil {
		return noop, nil
	}

	ttl := a.ledger.Get().Numbering.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	key := scope.lockKey()
	deadline := time.Now().Add(ttl)
	backoff := 10 * time.Millisecond

	for {
		token, ok, err := a.locker.TryLock(ctx, key, ttl)
		if err != nil {
			a.log.Warn("scope lock unavailable, relying on row lock", zap.String("scope", key), zap.Error(err))
			return noop, nil
		}
		if ok {
			return func() {
				if err := a.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
					a.log.Warn("failed to release scope lock", zap.String("scope", key), zap.Error(err))
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return noop, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return noop, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}
