package domain

import "github.com/shopspring/decimal"

// Usage is the token accounting of one assistant reply.
type Usage struct {
	PromptTokens     int             `json:"promptTokens"`
	CompletionTokens int             `json:"completionTokens"`
	Cost             decimal.Decimal `json:"cost"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		Cost:             u.Cost.Add(o.Cost),
	}
}
