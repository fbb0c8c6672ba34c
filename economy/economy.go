package economy

import (
	"errors"
	"fmt"
	"time"

	"torchverso/models"
)

var ErrInsufficientFunds = errors.New("insufficient tokens")

// Economy is the token balance spent on buildings. Buildings add to the
// income rate, which is paid once per accumulated second.
type Economy struct {
	balance    int
	incomeRate int
	timer      time.Duration
}

func New(balance int) *Economy {
	if balance < 0 {
		balance = 0
	}
	return &Economy{balance: balance}
}

func (e *Economy) Balance() int {
	return e.balance
}

func (e *Economy) IncomeRate() int {
	return e.incomeRate
}

// Update pays the income rate once every full second of dt and returns
// the amount paid.
func (e *Economy) Update(dt time.Duration) int {
	if e.incomeRate <= 0 {
		return 0
	}
	e.timer += dt
	paid := 0
	for e.timer >= time.Second {
		e.timer -= time.Second
		e.balance += e.incomeRate
		paid += e.incomeRate
	}
	return paid
}

func (e *Economy) CanAfford(cost int) bool {
	return e.balance >= cost
}

func (e *Economy) Spend(amount int) error {
	if amount < 0 {
		return fmt.Errorf("spend %d: negative amount", amount)
	}
	if !e.CanAfford(amount) {
		return fmt.Errorf("spend %d with %d: %w", amount, e.balance, ErrInsufficientFunds)
	}
	e.balance -= amount
	return nil
}

func (e *Economy) AddFunds(amount int) {
	if amount > 0 {
		e.balance += amount
	}
}

func (e *Economy) AddIncomeSource(perSecond int) {
	e.incomeRate += perSecond
	if e.incomeRate < 0 {
		e.incomeRate = 0
	}
}

func (e *Economy) Export() models.EconomyState {
	return models.EconomyState{Balance: e.balance, IncomeRate: e.incomeRate}
}

func (e *Economy) Import(s models.EconomyState) {
	e.balance = max(s.Balance, 0)
	e.incomeRate = max(s.IncomeRate, 0)
	e.timer = 0
}
