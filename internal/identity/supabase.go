package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go/types"
	"github.com/supabase-community/supabase-go"

	"github.com/zhouzirui/companion-academy/backend/internal/model/caller"
)

// SupabaseProvider resolves tokens through the Supabase auth API. Plan and
// features are read from the user's app_metadata.
type SupabaseProvider struct {
	client *supabase.Client
}

// NewSupabaseProvider returns a provider using client.
func NewSupabaseProvider(client *supabase.Client) *SupabaseProvider {
	return &SupabaseProvider{client: client}
}

// Authenticate fetches the user owning token.
func (p *SupabaseProvider) Authenticate(ctx context.Context, token string) (caller.Caller, error) {
	if token == "" {
		return caller.Caller{}, ErrMissingToken
	}
	if err := ctx.Err(); err != nil {
		return caller.Caller{}, err
	}

	resp, err := p.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return caller.Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if resp == nil || resp.User.ID == uuid.Nil {
		return caller.Caller{}, fmt.Errorf("%w: unknown user", ErrInvalidToken)
	}
	return callerFromUser(resp.User), nil
}

func callerFromUser(user types.User) caller.Caller {
	plan, features := entitlements(user.AppMetadata)
	return caller.Caller{UserID: user.ID.String(), Plan: plan, Features: features}
}
