package lease

import (
	"encoding/json"
	"errors"
	"fmt"

	"leasecore/storage"
)

// stateEnvelope serialises the tagged lifecycle variant. Exactly one payload
// field is populated, selected by the stage tag.
type stateEnvelope struct {
	Stage                Stage                 `json:"stage"`
	RequestingLoan       *RequestingLoan       `json:"requesting_loan,omitempty"`
	OpeningRemoteAccount *OpeningRemoteAccount `json:"opening_remote_account,omitempty"`
	TransferringOut      *TransferringOut      `json:"transferring_out,omitempty"`
	BuyingAsset          *BuyingAsset          `json:"buying_asset,omitempty"`
	Active               *Active               `json:"active,omitempty"`
	Closed               *Closed               `json:"closed,omitempty"`
	Failed               *Failed               `json:"failed,omitempty"`
}

// EncodeState serialises a lifecycle stage for persistence.
func EncodeState(state Controller) ([]byte, error) {
	env := stateEnvelope{Stage: state.Stage()}
	switch s := state.(type) {
	case RequestingLoan:
		env.RequestingLoan = &s
	case OpeningRemoteAccount:
		env.OpeningRemoteAccount = &s
	case TransferringOut:
		env.TransferringOut = &s
	case BuyingAsset:
		env.BuyingAsset = &s
	case *Active:
		env.Active = s
	case Closed:
		env.Closed = &s
	case Failed:
		env.Failed = &s
	default:
		return nil, brokenInvariant("state", fmt.Sprintf("unknown stage %T", state))
	}
	return json.Marshal(env)
}

// DecodeState rebuilds the lifecycle stage from its persisted form.
func DecodeState(raw []byte) (Controller, error) {
	var env stateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode lease state: %w", err)
	}
	switch env.Stage {
	case StageRequestingLoan:
		if env.RequestingLoan != nil {
			return *env.RequestingLoan, nil
		}
	case StageOpeningRemoteAccount:
		if env.OpeningRemoteAccount != nil {
			return *env.OpeningRemoteAccount, nil
		}
	case StageTransferringOut:
		if env.TransferringOut != nil {
			return *env.TransferringOut, nil
		}
	case StageBuyingAsset:
		if env.BuyingAsset != nil {
			return *env.BuyingAsset, nil
		}
	case StageActive:
		if env.Active != nil {
			return env.Active, nil
		}
	case StageClosed:
		if env.Closed != nil {
			return *env.Closed, nil
		}
	case StageFailed:
		if env.Failed != nil {
			return *env.Failed, nil
		}
	}
	return nil, brokenInvariant("state", "stage tag without matching payload")
}

// Store adapts a key-value database to the engine's persistence interface.
type Store struct {
	db storage.Database
}

// NewStore wraps the supplied database.
func NewStore(db storage.Database) *Store { return &Store{db: db} }

// LeaseGet loads the persisted lifecycle stage of a lease.
func (s *Store) LeaseGet(leaseID string) (Controller, bool, error) {
	raw, err := s.db.Get(leaseStateKey(leaseID))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	state, err := DecodeState(raw)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

// LeasePut persists the lifecycle stage of a lease.
func (s *Store) LeasePut(leaseID string, state Controller) error {
	raw, err := EncodeState(state)
	if err != nil {
		return err
	}
	return s.db.Put(leaseStateKey(leaseID), raw)
}

// CustomerLeases lists the lease identifiers opened by a customer.
func (s *Store) CustomerLeases(customer string) ([]string, error) {
	raw, err := s.db.Get(customerLeasesKey(customer))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode customer index: %w", err)
	}
	return ids, nil
}

// AppendCustomerLease records a new lease under the customer index.
func (s *Store) AppendCustomerLease(customer, leaseID string) error {
	ids, err := s.CustomerLeases(customer)
	if err != nil {
		return err
	}
	ids = append(ids, leaseID)
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.db.Put(customerLeasesKey(customer), raw)
}
