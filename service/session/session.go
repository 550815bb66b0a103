// Package session is the JWT-backed session provider: it verifies platform
// tokens, exposes the current identity and fires lifecycle callbacks on
// sign-in and sign-out.
package session

import (
	"fmt"
	"sync"
	"time"

	"PulseChat/service/gateway"
	"PulseChat/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options controls signing and TTL.
type Options struct {
	Secret []byte        // HMAC key
	TTL    time.Duration // token validity (default 2h)
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, TTL: 2 * time.Hour}
}

type Provider struct {
	opts Options

	mu  sync.Mutex
	cur *gateway.Session
	cbs []func(*gateway.Session)
}

var _ gateway.SessionProvider = (*Provider)(nil)

func NewProvider(opts Options) *Provider {
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	return &Provider{opts: opts}
}

func (p *Provider) Current() (gateway.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return gateway.Session{}, false
	}
	return *p.cur, true
}

func (p *Provider) OnChange(fn func(*gateway.Session)) {
	p.mu.Lock()
	p.cbs = append(p.cbs, fn)
	p.mu.Unlock()
}

// SignIn verifies a token and installs the session it carries.
func (p *Provider) SignIn(token string) (gateway.Session, error) {
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return p.opts.Secret, nil
	})
	if err != nil {
		return gateway.Session{}, errs.WrapMsg(err, "verify token")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok || !parsed.Valid {
		return gateway.Session{}, errs.ErrNoSession.WithDetail("invalid token").Wrap()
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return gateway.Session{}, errs.ErrNoSession.WithDetail("token missing sub").Wrap()
	}
	email, _ := claims["email"].(string)

	sess := gateway.Session{UserID: sub, Email: email}
	p.set(&sess)
	return sess, nil
}

func (p *Provider) SignOut() {
	p.set(nil)
}

// Generate signs a session token; used by tooling and tests.
func (p *Provider) Generate(userID, email string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(p.opts.TTL)
	claims := jwtlib.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   exp.Unix(),
	}
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := tok.SignedString(p.opts.Secret)
	if err != nil {
		return "", time.Time{}, errs.WrapMsg(err, "sign token")
	}
	return signed, exp, nil
}

func (p *Provider) set(s *gateway.Session) {
	p.mu.Lock()
	// re-verifying the same user's token is not a lifecycle event
	if s != nil && p.cur != nil && p.cur.UserID == s.UserID {
		p.mu.Unlock()
		return
	}
	if s == nil && p.cur == nil {
		p.mu.Unlock()
		return
	}
	p.cur = s
	cbs := make([]func(*gateway.Session), len(p.cbs))
	copy(cbs, p.cbs)
	p.mu.Unlock()
	for _, fn := range cbs {
		fn(s)
	}
}
