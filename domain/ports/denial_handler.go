package ports

import "context"

// Denial describes one refused outbound call.
type Denial struct {
	Component string
	URL       string
	Reason    string
	Hint      string // allow-list entry that would have permitted the call
}

// DenialHandler is called when the outbound policy refuses a guest request.
// Implementations can log, collect metrics, or take other actions. It must not
// block: it runs on the guest's call path.
type DenialHandler interface {
	OnDenial(ctx context.Context, d Denial)
}
