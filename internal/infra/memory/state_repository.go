package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/domain"
	"github.com/Guilherme-G-Cadilhe/Go-LedgerFlow-Payment-Orchestrator/internal/gateway"
)

type storedState struct {
	state    *domain.OrchestrationState
	archived bool
}

type OrchestrationStateRepository struct {
	mu     sync.Mutex
	states map[string]*storedState
	// FailSaves simula indisponibilidade do store durante Save.
	FailSaves error
}

func NewOrchestrationStateRepository() *OrchestrationStateRepository {
	return &OrchestrationStateRepository{states: make(map[string]*storedState)}
}

// SetFailSaves troca a falha simulada com o repositório já em uso.
func (r *OrchestrationStateRepository) SetFailSaves(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailSaves = err
}

func (r *OrchestrationStateRepository) Create(ctx context.Context, state *domain.OrchestrationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.states[state.TransactionID]; ok {
		return domain.ErrAlreadyExists
	}
	state.Version = 1
	r.states[state.TransactionID] = &storedState{state: state.Clone()}
	return nil
}

func (r *OrchestrationStateRepository) Get(ctx context.Context, transactionID string) (*domain.OrchestrationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[transactionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.state.Clone(), nil
}

func (r *OrchestrationStateRepository) Save(ctx context.Context, state *domain.OrchestrationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSaves != nil {
		return r.FailSaves
	}

	s, ok := r.states[state.TransactionID]
	if !ok {
		return domain.ErrNotFound
	}
	if s.state.Version != state.Version {
		return domain.ErrVersionConflict
	}
	state.Version++
	s.state = state.Clone()
	return nil
}

func (r *OrchestrationStateRepository) ListActive(ctx context.Context) ([]*domain.OrchestrationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.OrchestrationState
	for _, s := range r.states {
		if !s.archived {
			out = append(out, s.state.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *OrchestrationStateRepository) Archive(ctx context.Context, transactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[transactionID]
	if !ok {
		return domain.ErrNotFound
	}
	s.archived = true
	return nil
}

func (r *OrchestrationStateRepository) WithTx(tx gateway.TransactionObject) gateway.OrchestrationStateRepository {
	return r
}
