package custody

import "github.com/rs/zerolog"

// Unbacked is a local-development transfer capability: every transfer
// succeeds and is only logged. Never use it against real pools.
type Unbacked struct {
	log zerolog.Logger
}

// NewUnbacked creates an unbacked transfer capability
func NewUnbacked(log zerolog.Logger) *Unbacked {
	return &Unbacked{log: log.With().Str("client", "custody_unbacked").Logger()}
}

// Transfer logs the transfer and succeeds
func (u *Unbacked) Transfer(amount int64, from, to, memo string) error {
	u.log.Info().
		Int64("amount", amount).
		Str("from", from).
		Str("to", to).
		Str("memo", memo).
		Msg("Unbacked transfer")
	return nil
}
