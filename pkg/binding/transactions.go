package binding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mosip/esignet-binding/pkg/cache"
	"github.com/mosip/esignet-binding/pkg/hashing"
)

const (
	transactionKeyPrefix  = "binding:txn:"
	defaultTransactionTTL = 10 * time.Minute
)

// TransactionStore keeps in-flight bind ceremonies in the cache, keyed by
// the hash of the individual id so the raw identifier never appears in
// cache keys.
type TransactionStore struct {
	cache cache.Client
	ttl   time.Duration
}

// NewTransactionStore creates a transaction store with the given lifetime
// for pending ceremonies.
func NewTransactionStore(c cache.Client, ttl time.Duration) *TransactionStore {
	if ttl <= 0 {
		ttl = defaultTransactionTTL
	}
	return &TransactionStore{cache: c, ttl: ttl}
}

func transactionKey(individualID string) string {
	return transactionKeyPrefix + hashing.Identity(individualID)
}

// Create stores a new transaction, replacing any pending one for the same
// individual.
func (s *TransactionStore) Create(ctx context.Context, txn Transaction) error {
	data, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}
	if err := s.cache.Set(ctx, transactionKey(txn.IndividualID), string(data), s.ttl); err != nil {
		return fmt.Errorf("failed to store transaction: %w", err)
	}
	return nil
}

// Get returns the pending transaction for an individual, or
// ErrTransactionNotFound.
func (s *TransactionStore) Get(ctx context.Context, individualID string) (Transaction, error) {
	data, err := s.cache.Get(ctx, transactionKey(individualID))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, fmt.Errorf("failed to load transaction: %w", err)
	}
	var txn Transaction
	if err := json.Unmarshal([]byte(data), &txn); err != nil {
		return Transaction{}, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return txn, nil
}

// Delete discards the pending transaction for an individual. Deleting a
// missing transaction is not an error.
func (s *TransactionStore) Delete(ctx context.Context, individualID string) error {
	return s.cache.Delete(ctx, transactionKey(individualID))
}
