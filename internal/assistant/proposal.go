package assistant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"studybench/engine/internal/store"
)

type ProposedCard struct {
	DeckID       string `json:"deck_id,omitempty"`
	Question     string `json:"question"`
	Answer       string `json:"answer"`
	TimerSeconds int    `json:"timer_seconds,omitempty"`
}

type Proposal struct {
	ID        string         `json:"id"`
	Cards     []ProposedCard `json:"cards"`
	CreatedAt time.Time      `json:"created_at"`
}

// Proposals holds card batches the model has proposed but the user has
// not yet confirmed. Nothing reaches the library until Confirm.
type Proposals struct {
	mu       sync.Mutex
	pending  map[string]Proposal
	onNotify func(Proposal)
}

func NewProposals() *Proposals {
	return &Proposals{pending: make(map[string]Proposal)}
}

// OnPropose installs the hook invoked when a new proposal is added.
func (p *Proposals) OnPropose(fn func(Proposal)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNotify = fn
}

func (p *Proposals) Add(cards []ProposedCard) Proposal {
	proposal := Proposal{
		ID:        uuid.NewString(),
		Cards:     cards,
		CreatedAt: time.Now().UTC(),
	}
	p.mu.Lock()
	p.pending[proposal.ID] = proposal
	hook := p.onNotify
	p.mu.Unlock()

	if hook != nil {
		hook(proposal)
	}
	return proposal
}

func (p *Proposals) Get(id string) (Proposal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	proposal, ok := p.pending[id]
	return proposal, ok
}

func (p *Proposals) List() []Proposal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Proposal, 0, len(p.pending))
	for _, proposal := range p.pending {
		out = append(out, proposal)
	}
	return out
}

func (p *Proposals) Dismiss(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[id]; !ok {
		return false
	}
	delete(p.pending, id)
	return true
}

// Confirm persists a pending proposal's cards in order. On the first
// failure the remaining cards are not attempted; they stay pending
// under the same proposal id so the user can retry.
func (p *Proposals) Confirm(ctx context.Context, st *store.Store, id string) ([]store.Card, error) {
	p.mu.Lock()
	proposal, ok := p.pending[id]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("proposal not found: %s", id)
	}

	created := make([]store.Card, 0, len(proposal.Cards))
	for i, card := range proposal.Cards {
		saved, err := st.CreateCard(ctx, store.CreateCardInput{
			DeckID:          card.DeckID,
			QuestionType:    "text",
			QuestionContent: card.Question,
			AnswerType:      "text",
			AnswerContent:   card.Answer,
			TimerSeconds:    card.TimerSeconds,
		})
		if err != nil {
			p.mu.Lock()
			proposal.Cards = proposal.Cards[i:]
			p.pending[id] = proposal
			p.mu.Unlock()
			return created, fmt.Errorf("create card %d of %d: %w", i+1, len(proposal.Cards)+i, err)
		}
		created = append(created, saved)
	}

	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
	return created, nil
}
