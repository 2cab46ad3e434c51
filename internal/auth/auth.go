package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hako/branca"

	"messaging-service/internal/errs"
	"messaging-service/internal/models"
)

var (
	ErrInvalidToken = &errs.Error{Kind: errs.KindUnauthenticated, Message: "invalid token"}
	ErrExpiredToken = &errs.Error{Kind: errs.KindUnauthenticated, Message: "expired token"}
)

// Identity is what the authentication service vouches for.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

func (i Identity) Profile() models.Profile {
	return models.Profile{ID: i.UserID, DisplayName: i.DisplayName, AvatarURL: i.AvatarURL}
}

// Codec verifies branca tokens shared with the authentication service.
type Codec struct {
	key string
	ttl time.Duration
}

// NewCodec builds a codec. The key must be exactly 32 bytes.
func NewCodec(key string, ttl time.Duration) (*Codec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("auth token key must be 32 bytes, got %d", len(key))
	}
	return &Codec{key: key, ttl: ttl}, nil
}

func (c *Codec) branca() *branca.Branca {
	b := branca.NewBranca(c.key)
	b.SetTTL(uint32(c.ttl.Seconds()))
	return b
}

// Issue encodes an identity. Used by tooling and tests; production tokens
// come from the authentication service.
func (c *Codec) Issue(identity Identity) (string, error) {
	payload, err := json.Marshal(identity)
	if err != nil {
		return "", err
	}
	return c.branca().EncodeToString(string(payload))
}

// Verify decodes the token into the identity it carries.
func (c *Codec) Verify(token string) (Identity, error) {
	var identity Identity
	payload, err := c.branca().DecodeToString(token)
	if err != nil {
		var expired *branca.ErrExpiredToken
		if errors.As(err, &expired) {
			return identity, ErrExpiredToken
		}
		return identity, ErrInvalidToken
	}
	if err := json.Unmarshal([]byte(payload), &identity); err != nil || identity.UserID == "" {
		return identity, ErrInvalidToken
	}
	return identity, nil
}

// TokenFromHeader extracts the bearer token from an Authorization value.
func TokenFromHeader(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

var ctxKeyIdentity = struct{ name string }{name: "ctx-key-identity"}

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return identity, ok
}
