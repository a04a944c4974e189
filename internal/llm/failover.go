package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/clinicbot/internal/logging"
)

// Failover is a Client that asks providers in order until one answers.
// Names missing from the registry are passed over.
type Failover struct {
	reg   *Registry
	order []string
	log   *logging.Logger
}

func NewFailover(reg *Registry, primary string, fallbacks []string, log *logging.Logger) *Failover {
	return &Failover{
		reg:   reg,
		order: append([]string{primary}, fallbacks...),
		log:   log.Sub("llm"),
	}
}

func (f *Failover) Name() string { return f.order[0] }

// Complete returns the first answer. The errors of every provider tried
// are joined when none answers. Cancellation ends the walk at once.
func (f *Failover) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var failures []error
	for _, name := range f.order {
		c, ok := f.reg.Get(name)
		if !ok {
			continue
		}
		resp, err := c.Complete(ctx, req)
		if err == nil {
			if resp.Provider == "" {
				resp.Provider = name
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		ev := f.log.Warn()
		var pe *ProviderError
		if errors.As(err, &pe) && !pe.Transient() {
			ev = f.log.Error()
		}
		ev.Err(err).Str("provider", name).Msg("completion failed, trying next provider")
		failures = append(failures, err)
	}
	if len(failures) == 0 {
		return nil, fmt.Errorf("llm: none of %v is configured", f.order)
	}
	return nil, errors.Join(failures...)
}
