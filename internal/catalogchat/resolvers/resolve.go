package resolvers

import (
	"context"
	"errors"
	"fmt"

	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
	"github.com/bdobrica/catalogchat/internal/catalogchat/memory"
)

var (
	// ErrNoTarget means the message names no product and the conversation
	// has no last product to fall back on.
	ErrNoTarget = errors.New("resolvers: no target product")
	// ErrAmbiguous means a name matched several products.
	ErrAmbiguous = errors.New("resolvers: ambiguous product name")
)

// Resolution is a target resolved against the catalog.
type Resolution struct {
	Product catalog.Product
	// LastReferenced is set when the product came from conversation memory.
	LastReferenced bool
	// Candidates holds the matches when the name was ambiguous.
	Candidates []catalog.ProductSummary
}

// Resolve looks t up in repo. An empty reference falls back to the last
// product of the conversation when fallback is true.
func Resolve(ctx context.Context, repo catalog.Repository, t TargetRef, state memory.ConversationState, fallback bool) (Resolution, error) {
	var (
		p   catalog.Product
		err error
	)
	switch {
	case t.ProductID > 0:
		p, err = repo.Get(ctx, t.ProductID)
	case t.SKU != "":
		p, err = repo.FindBySKU(ctx, t.SKU)
	case t.Name != "":
		matches, ferr := repo.FindByName(ctx, t.Name, 5)
		if ferr != nil {
			return Resolution{}, fmt.Errorf("resolvers: find %q: %w", t.Name, ferr)
		}
		switch len(matches) {
		case 0:
			return Resolution{}, catalog.ErrNotFound
		case 1:
			p, err = repo.Get(ctx, matches[0].ID)
		default:
			for _, m := range matches {
				if equalFold(m.Name, t.Name) {
					p, err = repo.Get(ctx, m.ID)
					return finish(p, err, false)
				}
			}
			return Resolution{Candidates: matches}, ErrAmbiguous
		}
	case t.Latest:
		p, err = repo.Latest(ctx)
	case t.Earliest:
		p, err = repo.Earliest(ctx)
	case t.Pronoun || fallback:
		if state.LastProduct == nil {
			return Resolution{}, ErrNoTarget
		}
		p, err = repo.Get(ctx, state.LastProduct.ID)
		return finish(p, err, true)
	default:
		return Resolution{}, ErrNoTarget
	}
	return finish(p, err, false)
}

func finish(p catalog.Product, err error, last bool) (Resolution, error) {
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Product: p, LastReferenced: last}, nil
}
